package oembed

import (
	"encoding/json"
	"io"

	ierrors "github.com/kapouer/url-inspector/internal/errors"
	"github.com/kapouer/url-inspector/types"
)

var embedFieldMap = map[string]any{
	"type":          "type",
	"title":         "title",
	"thumbnail_url": "thumbnail",
	"width":         "width",
	"height":        "height",
	"html":          "html",
	"url":           "source",
	"provider_name": "site",
	"author_name":   "author",
	"description":   "description",
	"duration":      "duration",
	"upload_date":   "date",
}

// Decode parses an oEmbed JSON response body into the record. The record's
// mime becomes text/html since what an embed renders is a document, and the
// remote size is meaningless for it.
func Decode(r io.Reader, rec *types.Record) error {
	var payload map[string]any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return ierrors.Wrap(err, "failed to decode oembed response")
	}
	tags := types.NewTagSet()
	tags.Import(payload, embedFieldMap, types.PriorityMeta)
	tags.Apply(rec)

	switch rec.Type {
	case "photo":
		rec.Type = types.TypeImage
		rec.What = types.WhatImage
	case "video":
		rec.What = types.WhatVideo
	default:
		// placeholder the normalizer rewrites once the html snippet is known
		rec.Type = "page"
	}
	rec.Mime = "text/html"
	rec.Ext = "html"
	rec.UseEmbed = true
	rec.Size = 0
	return nil
}
