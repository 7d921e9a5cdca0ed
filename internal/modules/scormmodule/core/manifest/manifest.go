// Package manifest reads imsmanifest.xml and picks the single launchable SCO.
package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/archive"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"golang.org/x/net/html/charset"
)

// FileName is the fixed location of the manifest at the archive root
const FileName = "imsmanifest.xml"

// ScormTypeSCO marks a launchable resource
const ScormTypeSCO = "sco"

// Manifest is the subset of imsmanifest.xml the loader needs
type Manifest struct {
	Identifier    string
	Version       string
	SchemaVersion string
	Title         string // title of the default organization
	Resources     []Resource
}

// Resource is one <resource> declaration
type Resource struct {
	Identifier string
	Type       string
	ScormType  string
	Href       string // as declared, may carry a query or fragment
	Base       string // xml:base inherited from manifest, resources and resource
	Files      []string
}

// IsSCO reports whether the resource is declared launchable
func (r Resource) IsSCO() bool {
	return strings.EqualFold(strings.TrimSpace(r.ScormType), ScormTypeSCO)
}

// LaunchPath is the normalized archive path of the resource's entry point
func (r Resource) LaunchPath() string {
	p, _ := splitHref(r.Href)
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return archive.CleanPath(path.Join(strings.ReplaceAll(r.Base, `\`, "/"), p))
}

// LaunchSuffix is the query and fragment of href, kept for the launch URL
func (r Resource) LaunchSuffix() string {
	_, suffix := splitHref(r.Href)
	return suffix
}

func splitHref(href string) (string, string) {
	href = strings.TrimSpace(href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		return href[:i], href[i:]
	}
	return href, ""
}

type xmlAttrs []xml.Attr

func (a xmlAttrs) get(local string) string {
	for _, attr := range a {
		if strings.EqualFold(attr.Name.Local, local) {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

// base returns xml:base, which the decoder reports under the XML namespace
func (a xmlAttrs) base() string {
	for _, attr := range a {
		if attr.Name.Local == "base" && (attr.Name.Space == "http://www.w3.org/XML/1998/namespace" || attr.Name.Space == "xml") {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

type xmlManifest struct {
	XMLName       xml.Name `xml:"manifest"`
	Attrs         xmlAttrs `xml:",any,attr"`
	SchemaVersion string   `xml:"metadata>schemaversion"`
	Organizations struct {
		Default string `xml:"default,attr"`
		Items   []struct {
			Identifier string `xml:"identifier,attr"`
			Title      string `xml:"title"`
		} `xml:"organization"`
	} `xml:"organizations"`
	Resources struct {
		Attrs xmlAttrs `xml:",any,attr"`
		Items []struct {
			Attrs xmlAttrs `xml:",any,attr"`
			Files []struct {
				Href string `xml:"href,attr"`
			} `xml:"file"`
		} `xml:"resource"`
	} `xml:"resources"`
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// Decode parses manifest text without schema validation
func Decode(text string) (*Manifest, error) {
	data := []byte(text)
	if strings.TrimSpace(text) == "" {
		return nil, scormerrors.New(scormerrors.KindManifestMalformed, "decode_manifest", fmt.Errorf("empty document"))
	}

	var r io.Reader = bytes.NewReader(bytes.TrimPrefix(data, bomUTF8))
	charsetReader := charset.NewReaderLabel
	if bytes.HasPrefix(data, bomUTF16BE) || bytes.HasPrefix(data, bomUTF16LE) {
		converted, err := charset.NewReader(bytes.NewReader(data), "text/xml")
		if err != nil {
			return nil, scormerrors.New(scormerrors.KindManifestMalformed, "decode_manifest", err)
		}
		utf8, err := io.ReadAll(converted)
		if err != nil {
			return nil, scormerrors.New(scormerrors.KindManifestMalformed, "decode_manifest", err)
		}
		r = bytes.NewReader(bytes.TrimPrefix(utf8, bomUTF8))
		// Already UTF-8; the prolog still says UTF-16
		charsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var doc xmlManifest
	if err := dec.Decode(&doc); err != nil {
		return nil, scormerrors.New(scormerrors.KindManifestMalformed, "decode_manifest", err)
	}

	m := &Manifest{
		Identifier:    doc.Attrs.get("identifier"),
		Version:       doc.Attrs.get("version"),
		SchemaVersion: strings.TrimSpace(doc.SchemaVersion),
	}

	for i, org := range doc.Organizations.Items {
		if i == 0 || org.Identifier == doc.Organizations.Default {
			m.Title = strings.TrimSpace(org.Title)
		}
		if org.Identifier == doc.Organizations.Default {
			break
		}
	}

	inherited := joinBase(doc.Attrs.base(), doc.Resources.Attrs.base())
	for _, item := range doc.Resources.Items {
		res := Resource{
			Identifier: item.Attrs.get("identifier"),
			Type:       item.Attrs.get("type"),
			ScormType:  item.Attrs.get("scormtype"),
			Href:       item.Attrs.get("href"),
			Base:       joinBase(inherited, item.Attrs.base()),
		}
		for _, f := range item.Files {
			if f.Href != "" {
				res.Files = append(res.Files, f.Href)
			}
		}
		m.Resources = append(m.Resources, res)
	}

	return m, nil
}

func joinBase(parent, child string) string {
	if child == "" {
		return parent
	}
	if parent == "" || strings.HasPrefix(child, "/") {
		return child
	}
	return path.Join(parent, child)
}

// Launchable returns the single SCO resource. Zero or several SCOs, or an SCO
// without href, fail with NoLaunchableResource.
func (m *Manifest) Launchable() (*Resource, error) {
	var found []Resource
	for _, r := range m.Resources {
		if r.IsSCO() {
			found = append(found, r)
		}
	}

	switch {
	case len(found) == 0:
		return nil, scormerrors.New(scormerrors.KindNoLaunchableResource, "select_resource",
			fmt.Errorf("no resource with scormtype %q", ScormTypeSCO))
	case len(found) > 1:
		return nil, scormerrors.New(scormerrors.KindNoLaunchableResource, "select_resource",
			fmt.Errorf("%d resources with scormtype %q, multi-SCO packages are not supported", len(found), ScormTypeSCO))
	}

	res := found[0]
	if res.LaunchPath() == "" {
		return nil, scormerrors.New(scormerrors.KindNoLaunchableResource, "select_resource",
			fmt.Errorf("resource %q has no href", res.Identifier))
	}
	return &res, nil
}

// Parse decodes manifest text and returns its launchable resource
func Parse(text string) (*Resource, error) {
	m, err := Decode(text)
	if err != nil {
		return nil, err
	}
	return m.Launchable()
}

// FromArchive reads and decodes the manifest at the archive root
func FromArchive(a *archive.Archive) (*Manifest, error) {
	if !a.Has(FileName) {
		return nil, scormerrors.New(scormerrors.KindManifestMissing, "read_manifest", nil).WithPath(FileName)
	}
	text, err := a.ReadText(FileName)
	if err != nil {
		return nil, err
	}
	return Decode(text)
}
