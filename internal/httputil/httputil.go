// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers for upload handling and file
// downloads.
package httputil

import (
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// Attachment returns a Content-Disposition value that asks the client to
// save the response as name.
func Attachment(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")
	return `attachment; filename="` + r.Replace(name) + `"`
}

// UploadName returns the file name the client sent for a multipart file
// part. Unlike multipart.FileHeader.Filename it keeps directory components,
// so folder uploads retain their relative paths. It falls back to
// fh.Filename when the header cannot be parsed.
func UploadName(fh *multipart.FileHeader) string {
	if fh == nil {
		return ""
	}
	_, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition"))
	if err != nil {
		return fh.Filename
	}
	if name := params["filename"]; name != "" {
		return name
	}
	return fh.Filename
}

// CountingWriter counts the bytes written through it.
type CountingWriter struct {
	W io.Writer
	N int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}
