// Package aggregate folds fetched title documents into per-agency metrics.
package aggregate

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
)

// UnknownAgency buckets sections whose AGENCY attribute is absent.
const UnknownAgency = "UNKNOWN"

// Aggregator computes word counts and checksums per agency.
type Aggregator struct {
	hasher ecfr.Hasher
	logger *zap.Logger
}

// New constructs an Aggregator.
func New(hasher ecfr.Hasher, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{hasher: hasher, logger: logger}
}

// section is one SECTION element's attribution: the owning agency and its
// full text in document order.
type section struct {
	agency string
	text   string
}

// Aggregate extracts agency-attributed text from every document and merges it
// into a single metrics map. Documents are processed in ascending title order
// and sections in document order, so checksums are reproducible for identical
// input bytes. Malformed documents are reported per title and omitted.
func (a *Aggregator) Aggregate(docs map[ecfr.Title]ecfr.RawDocument) (map[string]ecfr.AgencyMetrics, map[ecfr.Title]error) {
	titles := make([]ecfr.Title, 0, len(docs))
	for t := range docs {
		titles = append(titles, t)
	}
	sort.Slice(titles, func(i, j int) bool { return titles[i] < titles[j] })

	type accum struct {
		words int
		text  bytes.Buffer
	}
	buckets := make(map[string]*accum)
	failures := make(map[ecfr.Title]error)

	for _, t := range titles {
		sections, err := extractSections(docs[t].Body)
		if err != nil {
			failures[t] = &ecfr.AggregationError{Title: t, Err: err}
			a.logger.Warn("malformed document omitted from aggregate",
				zap.Int("title", int(t)), zap.Error(err))
			continue
		}
		for _, sec := range sections {
			b := buckets[sec.agency]
			if b == nil {
				b = &accum{}
				buckets[sec.agency] = b
			}
			// Word count and checksum input come from the same extraction:
			// no partial updates.
			b.words += len(strings.Fields(sec.text))
			b.text.WriteString(sec.text)
		}
	}

	out := make(map[string]ecfr.AgencyMetrics, len(buckets))
	for agency, b := range buckets {
		sum, err := a.hasher.Hash(b.text.Bytes())
		if err != nil {
			// SHA-256 hashing cannot fail in practice; guard anyway.
			a.logger.Error("checksum failed", zap.String("agency", agency), zap.Error(err))
			continue
		}
		out[agency] = ecfr.AgencyMetrics{
			Agency:    agency,
			WordCount: b.words,
			Checksum:  sum,
		}
	}
	return out, failures
}

// extractSections walks the XML token stream and returns every SECTION
// element's agency attribution and text, in document order. Text inside
// nested sections contributes to each enclosing section, matching the
// element-subtree semantics of the source documents.
func extractSections(body []byte) ([]section, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty document body")
	}

	type openSection struct {
		agency string
		buf    strings.Builder
		index  int
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		sections []section
		stack    []*openSection
		sawRoot  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			if el.Name.Local != "SECTION" {
				continue
			}
			open := &openSection{agency: UnknownAgency, index: len(sections)}
			for _, attr := range el.Attr {
				if attr.Name.Local == "AGENCY" && attr.Value != "" {
					open.agency = attr.Value
				}
			}
			// Reserve the slot now so output order follows start order.
			sections = append(sections, section{agency: open.agency})
			stack = append(stack, open)
		case xml.EndElement:
			if el.Name.Local != "SECTION" || len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			sections[top.index].text = top.buf.String()
		case xml.CharData:
			for _, open := range stack {
				open.buf.Write(el)
			}
		}
	}
	if !sawRoot {
		return nil, errors.New("document contained no XML elements")
	}
	if len(stack) != 0 {
		return nil, errors.New("unterminated SECTION element")
	}
	return sections, nil
}
