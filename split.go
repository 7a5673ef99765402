package pubmed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Composite document envelope. Reassembled documents carry the same
// preamble the E-utilities API emits.
const (
	xmlHeader  = "<?xml version=\"1.0\" ?>\n"
	xmlDoctype = "<!DOCTYPE PubmedArticleSet PUBLIC \"-//NLM//DTD PubMedArticle, 1st January 2024//EN\"\n" +
		" \"https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_240101.dtd\">\n"
	articleSetTag = "PubmedArticleSet"
)

// FragmentKind is a closed enumeration of the record-level elements that can
// appear as direct children of a PubmedArticleSet.
type FragmentKind string

const (
	KindArticle     FragmentKind = "PubmedArticle"
	KindBookArticle FragmentKind = "PubmedBookArticle"
)

// ErrUnknownFragmentKind reports a child element of the composite document
// that is not in the closed kind set. Skipping it silently would be
// undetectable data loss, so the whole split fails loudly instead.
var ErrUnknownFragmentKind = errors.New("unknown article element kind")

// ErrNoPMID reports a record element without a primary identifier; such a
// fragment cannot be cached under a key.
var ErrNoPMID = errors.New("article element has no PMID")

// Fragment is one record-level element extracted from a composite document,
// keyed by its PMID and serialized as self-contained XML.
type Fragment struct {
	PMID string
	Kind FragmentKind
	XML  []byte
}

// fragmentProbe locates the primary identifier inside a fragment. The
// sub-path differs per kind: MedlineCitation/PMID for journal articles,
// BookDocument/PMID for book records.
type fragmentProbe struct {
	MedlineCitation struct {
		PMID string `xml:"PMID"`
	} `xml:"MedlineCitation"`
	BookDocument struct {
		PMID string `xml:"PMID"`
	} `xml:"BookDocument"`
}

func fragmentKind(name string) (FragmentKind, bool) {
	switch FragmentKind(name) {
	case KindArticle, KindBookArticle:
		return FragmentKind(name), true
	}
	return "", false
}

// SplitArticleSet decomposes a composite PubmedArticleSet document into
// per-record fragments, in document order. Every direct child of the root
// must be a known kind. Fragments are sliced out of the input verbatim, so
// mixed content and attributes survive byte-for-byte; the whitespace between
// siblings is left behind, keeping repeated split/reassemble cycles from
// accumulating stray text.
//
// A document whose root is itself a known record kind is treated as a
// single-fragment set.
func SplitArticleSet(data []byte) ([]Fragment, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))

	// Find the root element, skipping the declaration and DOCTYPE.
	var rootStart int64
	var root xml.StartElement
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse article set: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			root = se
			rootStart = offset
			break
		}
	}

	if kind, ok := fragmentKind(root.Name.Local); ok {
		if err := dec.Skip(); err != nil {
			return nil, fmt.Errorf("parse article set: %w", err)
		}
		raw := data[rootStart:dec.InputOffset()]
		frag, err := makeFragment(kind, raw)
		if err != nil {
			return nil, err
		}
		return []Fragment{frag}, nil
	}
	if root.Name.Local != articleSetTag {
		return nil, fmt.Errorf("unexpected root element <%s>", root.Name.Local)
	}

	var fragments []Fragment
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse article set: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			kind, ok := fragmentKind(t.Name.Local)
			if !ok {
				return nil, fmt.Errorf("%w: <%s>", ErrUnknownFragmentKind, t.Name.Local)
			}
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("parse article set: %w", err)
			}
			raw := data[offset:dec.InputOffset()]
			frag, err := makeFragment(kind, raw)
			if err != nil {
				return nil, err
			}
			fragments = append(fragments, frag)
		case xml.EndElement:
			if t.Name.Local == articleSetTag {
				return fragments, nil
			}
		}
	}
	return fragments, nil
}

func makeFragment(kind FragmentKind, raw []byte) (Fragment, error) {
	var probe fragmentProbe
	if err := xml.Unmarshal(raw, &probe); err != nil {
		return Fragment{}, fmt.Errorf("parse %s: %w", kind, err)
	}
	pmid := probe.MedlineCitation.PMID
	if kind == KindBookArticle {
		pmid = probe.BookDocument.PMID
	}
	if pmid == "" {
		return Fragment{}, fmt.Errorf("%w (<%s>)", ErrNoPMID, kind)
	}
	return Fragment{PMID: pmid, Kind: kind, XML: raw}, nil
}

// ReassembleArticleSet rebuilds a composite document from cached and
// freshly-split fragments, in the exact order of the requested key list
// (not cache-insertion order). Keys without a fragment are omitted; the
// caller decides whether that is a failure.
func ReassembleArticleSet(keys []string, fragments map[string][]byte) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(xmlDoctype)
	b.WriteString("<" + articleSetTag + ">\n")
	for _, key := range keys {
		frag, ok := fragments[key]
		if !ok {
			continue
		}
		b.Write(bytes.TrimSpace(frag))
		b.WriteByte('\n')
	}
	b.WriteString("</" + articleSetTag + ">")
	return b.Bytes()
}
