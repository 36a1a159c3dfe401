// Package manifest records per-medium file digests of a compiled media set and
// optionally signs them.
package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/common"
	"example.com/arinc665/internal/compiler"
	"example.com/arinc665/internal/crypto"
	"example.com/arinc665/internal/files"
)

type Item struct {
	Medium string `json:"medium"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time  `json:"createdAt"`
	MediaSet  string     `json:"mediaSet,omitempty"`
	Media     int        `json:"media"`
	Algorithm string     `json:"algorithm"`
	Items     []Item     `json:"items"`
	Signature *Signature `json:"signature,omitempty"`
}

type Signature struct {
	Type          string `json:"type"`
	CertSubject   string `json:"certSubject,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
	SignatureFile string `json:"signatureFile,omitempty"`
}

func itemType(name string) string {
	switch arinc665.FileTypeOf(name) {
	case arinc665.FileTypeFileList:
		return "fileList"
	case arinc665.FileTypeLoadList:
		return "loadList"
	case arinc665.FileTypeBatchList:
		return "batchList"
	case arinc665.FileTypeLoadUploadHeader:
		return "loadHeader"
	case arinc665.FileTypeBatchFile:
		return "batch"
	}
	return "file"
}

// Build digests every file below the MEDIUM_nnn directories of root. Items are
// ordered by medium, then path. The media set part number is taken from the
// first medium's list of files when it decodes.
func Build(root, algo string) (Manifest, error) {
	if algo == "" {
		algo = common.AlgoSHA256
	}
	m := Manifest{CreatedAt: time.Now().UTC(), Algorithm: algo}
	src := &compiler.DirSource{Root: root}
	nums, err := src.Media()
	if err != nil {
		return m, err
	}
	if len(nums) == 0 {
		return m, errors.New("no medium directories found")
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	m.Media = len(nums)
	if raw, err := src.ReadFile(nums[0], "/"+arinc665.ListOfFilesName); err == nil {
		if fl, err := files.DecodeFileListFile(raw); err == nil {
			m.MediaSet = fl.MediaSet.PartNumber
		}
	}
	for _, n := range nums {
		dir := filepath.Join(root, compiler.MediumDir(n))
		var items []Item
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			digest, size, err := common.DigestOfFile(p, algo)
			if err != nil {
				return err
			}
			items = append(items, Item{
				Medium: n.String(),
				Path:   "/" + filepath.ToSlash(rel),
				Size:   size,
				Digest: digest,
				Type:   itemType(d.Name()),
			})
			return nil
		})
		if err != nil {
			return m, err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
		m.Items = append(m.Items, items...)
	}
	return m, nil
}

// Payload is the canonical JSON the signature and the digest cover: the
// manifest without its signature block.
func (m Manifest) Payload() ([]byte, error) {
	m.Signature = nil
	return json.Marshal(m)
}

// Digest returns the digest of the payload, used for the report QR code.
func (m Manifest) Digest() (string, error) {
	b, err := m.Payload()
	if err != nil {
		return "", err
	}
	return common.DigestOfBytes(b, m.Algorithm)
}

// Sign writes a detached JWS of the payload to sigPath and records it in the
// manifest. certPEM is optional.
func (m *Manifest) Sign(keyPEM, certPEM []byte, sigPath string) error {
	payload, err := m.Payload()
	if err != nil {
		return err
	}
	sig := &Signature{Type: "JWS-RS256", SignatureFile: filepath.Base(sigPath)}
	kid := ""
	if len(certPEM) > 0 {
		sig.CertSubject, sig.Issuer, err = crypto.CertificateNames(certPEM)
		if err != nil {
			return err
		}
		kid = sig.CertSubject
	}
	jws, err := crypto.SignDetachedJWS(payload, keyPEM, kid)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(jws, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(sigPath, b, 0644); err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks the detached signature stored at sigPath.
func (m Manifest) Verify(sigPath string, publicPEM []byte) error {
	b, err := os.ReadFile(sigPath)
	if err != nil {
		return err
	}
	var jws crypto.JWS
	if err := json.Unmarshal(b, &jws); err != nil {
		return err
	}
	payload, err := m.Payload()
	if err != nil {
		return err
	}
	return crypto.VerifyDetachedJWS(jws, payload, publicPEM)
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
