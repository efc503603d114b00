package manifest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/appdock/apphub-backend/internal/types"
)

// ErrMalformedPackage means the uploaded bytes are not a readable
// archive at all. A readable archive with no manifest is NOT malformed;
// it yields an empty descriptor that fails completeness validation
// downstream.
var ErrMalformedPackage = errors.New("package archive is not readable")

const manifestFileName = "AppManifest.xml"

// PackageDescriptor is the metadata extracted from a package manifest.
// It lives for one upload/upgrade attempt before being merged into an
// AppRecord.
type PackageDescriptor struct {
	ProductID             string
	Version               string
	Title                 string
	IsClientSideSolution  bool
	IsDomainIsolated      bool
	SkipFeatureDeployment bool
	MinPlatformVersion    string
	APIPermissionsXML     string
	Status                string
}

// IsComplete reports whether the fields every accepted package must
// carry are present.
func (d PackageDescriptor) IsComplete() bool {
	return strings.TrimSpace(d.ProductID) != "" &&
		strings.TrimSpace(d.Version) != "" &&
		strings.TrimSpace(d.Title) != ""
}

type IconAsset struct {
	Name string
	Ext  string
	Data []byte
}

type Package struct {
	Descriptor PackageDescriptor
	Icon       *IconAsset
}

var iconExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Read unpacks a zip-compatible archive, parses the embedded manifest
// document and picks up the optional icon asset. When several image
// files exist the last one encountered wins; package-file selection
// elsewhere keeps the first match. Both behaviors are intentional.
func Read(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, ErrMalformedPackage
	}

	pkg := &Package{Descriptor: PackageDescriptor{Status: types.StatusNew}}

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := path.Base(zf.Name)
		if !strings.Contains(zf.Name, "/") && strings.EqualFold(zf.Name, manifestFileName) {
			raw, err := readZipFile(zf)
			if err != nil {
				return nil, ErrMalformedPackage
			}
			desc, err := parseManifest(raw)
			if err != nil {
				return nil, ErrMalformedPackage
			}
			desc.Status = types.StatusNew
			pkg.Descriptor = desc
			continue
		}
		ext := strings.ToLower(path.Ext(name))
		if iconExtensions[ext] {
			raw, err := readZipFile(zf)
			if err != nil {
				return nil, ErrMalformedPackage
			}
			pkg.Icon = &IconAsset{Name: name, Ext: ext, Data: raw}
		}
	}

	return pkg, nil
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func parseManifest(raw []byte) (PackageDescriptor, error) {
	var desc PackageDescriptor

	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return desc, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "ProductID":
				desc.ProductID = strings.TrimSpace(attr.Value)
			case "Version":
				desc.Version = strings.TrimSpace(attr.Value)
			case "Title":
				desc.Title = strings.TrimSpace(attr.Value)
			case "IsClientSideSolution":
				desc.IsClientSideSolution = attr.Value == "true"
			case "IsDomainIsolated":
				desc.IsDomainIsolated = attr.Value == "true"
			case "SkipFeatureDeployment":
				desc.SkipFeatureDeployment = attr.Value == "true"
			case "SharePointMinVersion":
				desc.MinPlatformVersion = strings.TrimSpace(attr.Value)
			}
		}
		break
	}

	desc.APIPermissionsXML = extractPermissions(raw)
	return desc, nil
}

// extractPermissions pulls the raw inner content of the
// WebApiPermissionRequests element and turns the entity-escaped
// markup back into literal markup.
func extractPermissions(raw []byte) string {
	text := string(raw)
	openIdx := strings.Index(text, "<WebApiPermissionRequests")
	if openIdx < 0 {
		return ""
	}
	rest := text[openIdx:]
	tagEnd := strings.Index(rest, ">")
	if tagEnd < 0 {
		return ""
	}
	if tagEnd > 0 && rest[tagEnd-1] == '/' {
		return ""
	}
	inner := rest[tagEnd+1:]
	closeIdx := strings.Index(inner, "</WebApiPermissionRequests>")
	if closeIdx < 0 {
		return ""
	}
	return unescapeEntities(strings.TrimSpace(inner[:closeIdx]))
}

func unescapeEntities(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}
