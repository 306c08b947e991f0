package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/archetype/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ctx() context.Context {
	return context.Background()
}

// testScheme returns a version 1 scheme with a title and a views field.
func testScheme(name string) ir.Scheme {
	return ir.Scheme{
		Name:    name,
		Version: 1,
		Fields: []ir.FieldDef{
			{
				Key:    "title",
				Label:  "Title",
				Type:   ir.TypeString,
				Rules:  ir.StringRules{MaxChar: ir.Ptr(80)},
				Access: []ir.Role{ir.RolePublic, ir.RoleEditor, ir.RoleAdmin},
			},
			{
				Key:     "views",
				Label:   "Views",
				Type:    ir.TypeNumber,
				Rules:   ir.NumberRules{MinValue: ir.Ptr(0.0)},
				Access:  []ir.Role{ir.RoleAdmin},
				Default: ir.IRInt(0),
			},
		},
		CreatedAt:  1000,
		ModifiedAt: 1000,
		ModifiedBy: 7,
	}
}

// testEntry returns an entry of schemeID at version 1.
func testEntry(schemeID int64, data *ir.IRObject) ir.Entry {
	return ir.Entry{
		SchemeID:      schemeID,
		SchemeVersion: 1,
		Data:          data,
		CreatedAt:     2000,
		ModifiedAt:    2000,
		ModifiedBy:    7,
	}
}

func mustCreateScheme(t *testing.T, s *Store, sc ir.Scheme) int64 {
	t.Helper()
	id, err := s.CreateScheme(ctx(), sc)
	if err != nil {
		t.Fatalf("CreateScheme() failed: %v", err)
	}
	return id
}

func mustCreateEntry(t *testing.T, s *Store, e ir.Entry) int64 {
	t.Helper()
	id, err := s.CreateEntry(ctx(), e, nil)
	if err != nil {
		t.Fatalf("CreateEntry() failed: %v", err)
	}
	return id
}
