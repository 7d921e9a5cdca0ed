// Package scormtest builds SCORM package fixtures for tests.
package scormtest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Resource describes one <resource> element of a generated manifest
type Resource struct {
	Identifier string
	ScormType  string // written as adlcp:scormtype; empty omits the attribute
	Href       string // empty omits the attribute
	Base       string // xml:base, optional
}

// Zip builds a zip archive from name -> content pairs. Entries are written in
// name order so fixtures are deterministic.
func Zip(tb testing.TB, files map[string]string) []byte {
	tb.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// Manifest renders an imsmanifest.xml declaring the given resources
func Manifest(resources ...Resource) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="com.example.course" version="1.0"
  xmlns="http://www.imsglobal.org/xsd/imscp_v1p1"
  xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_v1p3">
  <metadata><schema>ADL SCORM</schema><schemaversion>2004 3rd Edition</schemaversion></metadata>
  <organizations default="org1">
    <organization identifier="org1"><title>Example Course</title></organization>
  </organizations>
  <resources>
`)
	for _, r := range resources {
		b.WriteString(`    <resource identifier="` + r.Identifier + `" type="webcontent"`)
		if r.ScormType != "" {
			b.WriteString(` adlcp:scormtype="` + r.ScormType + `"`)
		}
		if r.Href != "" {
			b.WriteString(` href="` + r.Href + `"`)
		}
		if r.Base != "" {
			b.WriteString(` xml:base="` + r.Base + `"`)
		}
		b.WriteString(">\n")
		if r.Href != "" {
			fmt.Fprintf(&b, "      <file href=%q/>\n", r.Href)
		}
		b.WriteString("    </resource>\n")
	}
	b.WriteString("  </resources>\n</manifest>\n")
	return b.String()
}

// IndexHTML is the launch page used by the default fixtures
const IndexHTML = `<!DOCTYPE html><html><head><title>SCO</title></head><body>lesson</body></html>`

// SingleSCO returns a package with one sco resource pointing at href and an
// index.html entry.
func SingleSCO(tb testing.TB, href string) []byte {
	tb.Helper()
	return Zip(tb, map[string]string{
		"imsmanifest.xml": Manifest(Resource{Identifier: "r1", ScormType: "sco", Href: href}),
		"index.html":      IndexHTML,
		"css/style.css":   "body { margin: 0 }",
	})
}
