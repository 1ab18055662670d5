// Package docstore manages the local invoice document tree. Documents live
// under one subfolder per bill (invoices_dir/<bill_id>/<file>); the store
// scans, reads and deletes them but never parses file formats itself.
package docstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

// invoiceExtensions is the set of file types considered invoice candidates.
// Matching is case-insensitive.
var invoiceExtensions = map[string]struct{}{
	".pdf": {}, ".xlsx": {}, ".xls": {}, ".docx": {}, ".doc": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".txt": {},
}

// Document is one candidate invoice file discovered by a scan.
type Document struct {
	Key  model.InvoiceKey
	Path string
}

// Extractor turns a document file into plain text for the AI extraction
// prompt. Format-specific parsing (PDF rasterization, spreadsheet readers)
// lives behind this interface.
type Extractor interface {
	ExtractText(path string) (string, error)
}

// Store scans and mutates the local invoice tree.
type Store struct {
	root string
}

// New creates a store rooted at the invoices directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Scan walks every bill subfolder and returns candidate documents in
// deterministic order (bill ID, then file name). Duplicate paths from
// case-variant extensions collapse to one entry.
func (s *Store) Scan() ([]Document, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read root %s", s.root)
	}

	seen := make(map[string]struct{})
	var docs []Document
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		billID := e.Name()
		billDocs, err := s.ScanBill(billID)
		if err != nil {
			return nil, err
		}
		for _, d := range billDocs {
			if _, dup := seen[d.Path]; dup {
				continue
			}
			seen[d.Path] = struct{}{}
			docs = append(docs, d)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Key.BillID != docs[j].Key.BillID {
			return docs[i].Key.BillID < docs[j].Key.BillID
		}
		return docs[i].Key.FileName < docs[j].Key.FileName
	})

	zap.L().Info("docstore: scan complete", zap.Int("documents", len(docs)))
	return docs, nil
}

// ScanBill returns the candidate documents in one bill's folder.
func (s *Store) ScanBill(billID string) ([]Document, error) {
	dir := filepath.Join(s.root, billID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "docstore: read bill folder %s", billID)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := invoiceExtensions[ext]; !ok {
			continue
		}
		docs = append(docs, Document{
			Key:  model.InvoiceKey{BillID: billID, FileName: e.Name()},
			Path: filepath.Join(dir, e.Name()),
		})
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Key.FileName < docs[j].Key.FileName
	})
	return docs, nil
}

// Delete removes a non-invoice document so later scans never resubmit it.
func (s *Store) Delete(doc Document) error {
	if err := os.Remove(doc.Path); err != nil {
		return eris.Wrapf(err, "docstore: delete %s", doc.Key)
	}
	zap.L().Info("docstore: deleted non-invoice document",
		zap.String("bill_id", doc.Key.BillID),
		zap.String("file", doc.Key.FileName),
	)
	return nil
}

// TextExtractor reads plain-text documents. Other formats return an error the
// extraction stage maps to a failed outcome.
type TextExtractor struct{}

func (TextExtractor) ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".txt" {
		return "", eris.Errorf("docstore: no text extractor for %s files", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "docstore: read %s", path)
	}
	return string(data), nil
}
