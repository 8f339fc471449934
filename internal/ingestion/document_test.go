package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/medical-kg/ingest/internal/payload"
)

func TestNewDocument(t *testing.T) {
	rawBytes := []byte(`{"pmid":"100"}`)

	doc, err := NewDocument("pmid:100", "pubmed", "2026-08-24", rawBytes,
		&payload.PubMedArticle{PMID: "100", Title: "A citation"},
		WithURI("https://pubmed.ncbi.nlm.nih.gov/100/"),
		WithContent("A citation"),
		WithMetadata("api_version", "2.0"),
	)
	if err != nil {
		t.Fatalf("NewDocument() failed: %v", err)
	}

	if doc.URI != "https://pubmed.ncbi.nlm.nih.gov/100/" {
		t.Errorf("URI = %s", doc.URI)
	}

	if doc.Content != "A citation" {
		t.Errorf("Content = %s", doc.Content)
	}

	if doc.Metadata[MetadataContentHash] != ContentHash(rawBytes) {
		t.Errorf("content_hash = %v", doc.Metadata[MetadataContentHash])
	}

	if doc.Metadata[MetadataSourceVersion] != "2026-08-24" {
		t.Errorf("source_version = %v", doc.Metadata[MetadataSourceVersion])
	}

	if doc.Metadata["api_version"] != "2.0" {
		t.Errorf("api_version = %v", doc.Metadata["api_version"])
	}

	stamp, ok := doc.Metadata[MetadataIngestedAt].(string)
	if !ok {
		t.Fatalf("ingested_at = %v", doc.Metadata[MetadataIngestedAt])
	}

	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("ingested_at %q is not RFC 3339: %v", stamp, err)
	}

	if err := ValidateMetadata(doc); err != nil {
		t.Errorf("ValidateMetadata() failed on fresh document: %v", err)
	}
}

func TestNewDocumentSentinels(t *testing.T) {
	record := &payload.PubMedArticle{PMID: "100", Title: "t"}

	if _, err := NewDocument("", "pubmed", "v1", nil, record); !errors.Is(err, ErrDocIDEmpty) {
		t.Errorf("empty doc_id error = %v", err)
	}

	if _, err := NewDocument("pmid:100", "", "v1", nil, record); !errors.Is(err, ErrSourceEmpty) {
		t.Errorf("empty source error = %v", err)
	}

	if _, err := NewDocument("pmid:100", "pubmed", "v1", nil, nil); !errors.Is(err, ErrRawPayloadNil) {
		t.Errorf("nil payload error = %v", err)
	}
}

func TestContentHashIsDeterministic(t *testing.T) {
	a := ContentHash([]byte(`{"pmid":"100"}`))
	b := ContentHash([]byte(`{"pmid":"100"}`))
	c := ContentHash([]byte(`{"pmid":"200"}`))

	if a != b {
		t.Errorf("same bytes hashed differently: %s vs %s", a, b)
	}

	if a == c {
		t.Error("different bytes share a hash")
	}

	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestValidateMetadataRejectsMissingKeys(t *testing.T) {
	doc, err := NewDocument("pmid:100", "pubmed", "v1", []byte("{}"),
		&payload.PubMedArticle{PMID: "100", Title: "t"})
	if err != nil {
		t.Fatalf("NewDocument() failed: %v", err)
	}

	delete(doc.Metadata, MetadataContentHash)

	if err := ValidateMetadata(doc); !errors.Is(err, ErrMissingMetadata) {
		t.Errorf("missing key error = %v", err)
	}
}

func TestValidateMetadataRejectsEmptyValues(t *testing.T) {
	doc, err := NewDocument("pmid:100", "pubmed", "v1", []byte("{}"),
		&payload.PubMedArticle{PMID: "100", Title: "t"})
	if err != nil {
		t.Fatalf("NewDocument() failed: %v", err)
	}

	doc.Metadata[MetadataSourceVersion] = ""

	if err := ValidateMetadata(doc); !errors.Is(err, ErrMissingMetadata) {
		t.Errorf("empty value error = %v", err)
	}
}
