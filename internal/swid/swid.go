// Package swid writes ISO/IEC 19770-2 software identification tags
// describing a finished distribution tree.
package swid

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

const (
	schemaNS = "http://standards.iso.org/iso/19770/-2/2015/schema.xsd"
	sha256NS = "http://www.w3.org/2001/04/xmlenc#sha256"
	sha512NS = "http://www.w3.org/2001/04/xmlenc#sha512"

	DefaultPath       = "_swidtag"
	DefaultEntityName = "Unknown"
	DefaultRegID      = "unknown"
	DefaultLang       = "en-US"
	Extension         = ".swidtag"
)

// ErrCycle reports a directory reachable from itself through symlinks.
var ErrCycle = errors.New("filesystem cycle")

// Options describe the tagged package.
type Options struct {
	Name       string
	Version    string
	TagName    string
	EntityName string
	RegID      string
	Lang       string
	// Path is the directory, relative to the tree, the tag is written to.
	Path string
}

func (o Options) withDefaults() Options {
	if o.TagName == "" {
		o.TagName = o.Name
	}
	if o.EntityName == "" {
		o.EntityName = DefaultEntityName
	}
	if o.RegID == "" {
		o.RegID = DefaultRegID
	}
	if o.Lang == "" {
		o.Lang = DefaultLang
	}
	if o.Path == "" {
		o.Path = DefaultPath
	}
	return o
}

// TagID is the name-based UUID of name:version, so equal inputs give
// equal tags.
func TagID(name, version string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name+":"+version)).String()
}

// File is one payload file with its size and digests.
type File struct {
	Name   string
	Size   int64
	SHA256 string
	SHA512 string
}

// Directory is a payload directory node.
type Directory struct {
	Name        string
	Directories []*Directory
	Files       []*File
}

// Walk builds the payload tree of root. Any unreadable entry or symlink
// cycle fails the whole walk, and no partial tree is returned. Paths in
// skip (relative, slash separated) are left out.
func Walk(root string, skip ...string) (*Directory, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	w := &walker{skip: make(map[string]bool), ancestors: map[string]bool{}}
	for _, s := range skip {
		w.skip[filepath.ToSlash(filepath.Clean(s))] = true
	}
	dir := &Directory{Name: filepath.Base(abs)}
	if _, err := w.visit(abs, real, "", dir); err != nil {
		return nil, err
	}
	return dir, nil
}

type walker struct {
	skip      map[string]bool
	ancestors map[string]bool
}

// visit fills node and reports whether a skipped path was seen below it.
// Directories left empty only because of skipped entries are dropped.
func (w *walker) visit(path, real, rel string, node *Directory) (bool, error) {
	if w.ancestors[real] {
		return false, fmt.Errorf("%w: %s", ErrCycle, path)
	}
	w.ancestors[real] = true
	defer delete(w.ancestors, real)

	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	skipped := false
	for _, e := range entries {
		childPath := filepath.Join(path, e.Name())
		childRel := e.Name()
		if rel != "" {
			childRel = rel + "/" + e.Name()
		}
		if w.skip[childRel] {
			skipped = true
			continue
		}

		info, err := os.Stat(childPath)
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", childPath, err)
		}
		if info.IsDir() {
			childReal, err := filepath.EvalSymlinks(childPath)
			if err != nil {
				return false, fmt.Errorf("resolving %s: %w", childPath, err)
			}
			child := &Directory{Name: e.Name()}
			childSkipped, err := w.visit(childPath, childReal, childRel, child)
			if err != nil {
				return false, err
			}
			skipped = skipped || childSkipped
			if childSkipped && len(child.Files) == 0 && len(child.Directories) == 0 {
				continue
			}
			node.Directories = append(node.Directories, child)
			continue
		}

		f, err := hashFile(childPath)
		if err != nil {
			return false, err
		}
		f.Name = e.Name()
		node.Files = append(node.Files, f)
	}
	sort.Slice(node.Directories, func(i, j int) bool { return node.Directories[i].Name < node.Directories[j].Name })
	sort.Slice(node.Files, func(i, j int) bool { return node.Files[i].Name < node.Files[j].Name })
	return skipped, nil
}

func hashFile(path string) (*File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer in.Close()

	h256, h512 := sha256.New(), sha512.New()
	n, err := io.Copy(io.MultiWriter(h256, h512), in)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return &File{
		Size:   n,
		SHA256: hex.EncodeToString(h256.Sum(nil)),
		SHA512: hex.EncodeToString(h512.Sum(nil)),
	}, nil
}

type xmlTag struct {
	XMLName       xml.Name   `xml:"SoftwareIdentity"`
	Attrs         []xml.Attr `xml:",any,attr"`
	Name          string     `xml:"name,attr"`
	TagID         string     `xml:"tagId,attr"`
	Version       string     `xml:"version,attr"`
	VersionScheme string     `xml:"versionScheme,attr"`
	Entity        xmlEntity  `xml:"Entity"`
	Payload       xmlPayload `xml:"Payload"`
}

type xmlEntity struct {
	Name  string `xml:"name,attr"`
	RegID string `xml:"regid,attr"`
	Role  string `xml:"role,attr"`
}

type xmlPayload struct {
	Directory *xmlDirectory `xml:"Directory"`
}

type xmlDirectory struct {
	Name        string          `xml:"name,attr"`
	Directories []*xmlDirectory `xml:"Directory"`
	Files       []*xmlFile      `xml:"File"`
}

type xmlFile struct {
	Name  string     `xml:"name,attr"`
	Size  int64      `xml:"size,attr"`
	Attrs []xml.Attr `xml:",any,attr"`
}

func toXML(d *Directory) *xmlDirectory {
	out := &xmlDirectory{Name: d.Name}
	for _, c := range d.Directories {
		out.Directories = append(out.Directories, toXML(c))
	}
	for _, f := range d.Files {
		out.Files = append(out.Files, &xmlFile{
			Name: f.Name,
			Size: f.Size,
			Attrs: []xml.Attr{
				{Name: xml.Name{Local: "SHA256:hash"}, Value: f.SHA256},
				{Name: xml.Name{Local: "SHA512:hash"}, Value: f.SHA512},
			},
		})
	}
	return out
}

// Marshal serializes a payload tree with the package identity.
func Marshal(payload *Directory, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	tag := xmlTag{
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: schemaNS},
			{Name: xml.Name{Local: "xmlns:SHA256"}, Value: sha256NS},
			{Name: xml.Name{Local: "xmlns:SHA512"}, Value: sha512NS},
			{Name: xml.Name{Local: "xml:lang"}, Value: opts.Lang},
		},
		Name:          opts.Name,
		TagID:         TagID(opts.Name, opts.Version),
		Version:       opts.Version,
		VersionScheme: "multipartnumeric",
		Entity: xmlEntity{
			Name:  opts.EntityName,
			RegID: opts.RegID,
			Role:  "tagCreator softwareCreator",
		},
		Payload: xmlPayload{Directory: toXML(payload)},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(tag); err != nil {
		return nil, fmt.Errorf("encoding swid tag: %w", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Write walks root and stores <root>/<Path>/<TagName>.swidtag. When the
// walk fails nothing is written.
func Write(root string, opts Options) (string, error) {
	log := logger.Logger()
	opts = opts.withDefaults()
	if filepath.IsAbs(opts.Path) || strings.HasPrefix(filepath.Clean(opts.Path), "..") {
		return "", fmt.Errorf("swid tag path %q must stay inside the tree", opts.Path)
	}
	tagRel := filepath.ToSlash(filepath.Join(opts.Path, opts.TagName+Extension))

	payload, err := Walk(root, tagRel)
	if err != nil {
		log.Errorf("Not writing swid tag for %s: %v", root, err)
		return "", err
	}
	data, err := Marshal(payload, opts)
	if err != nil {
		return "", err
	}

	out := filepath.Join(root, filepath.FromSlash(tagRel))
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(out), err)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", out, err)
	}
	log.Debugf("Wrote swid tag %s", out)
	return out, nil
}
