package engine

import (
	"context"
	"errors"

	"github.com/roach88/archetype/internal/ir"
)

// ImportResult reports what Import did with one definition.
type ImportResult struct {
	Name     string   `json:"name"`
	SchemeID int64    `json:"scheme_id"`
	Created  bool     `json:"created"`
	Added    []string `json:"added"`
	Skipped  []string `json:"skipped"`
	Version  int      `json:"version"`
}

// Import applies scheme definitions by name. A scheme that does not exist
// yet is created; fields are added in definition order and fields whose key
// the scheme already has are skipped, never updated.
//
// Import stops at the first failing definition; results for the
// definitions before it are returned with the error.
func (e *Engine) Import(ctx context.Context, defs []ir.SchemeDef, actor int64) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(defs))
	for _, def := range defs {
		res, err := e.importOne(ctx, def, actor)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) importOne(ctx context.Context, def ir.SchemeDef, actor int64) (ImportResult, error) {
	res := ImportResult{Name: def.Name, Added: []string{}, Skipped: []string{}}

	sc, err := e.repo.FindSchemeByName(ctx, def.Name)
	switch {
	case errors.Is(err, ir.ErrNotFound):
		sc, err = e.Schemes.Create(ctx, def.Name, actor)
		if err != nil {
			return res, err
		}
		res.Created = true
	case err != nil:
		return res, e.internal("find scheme", err)
	}
	res.SchemeID = sc.ID
	res.Version = sc.Version

	for _, f := range def.Fields {
		if sc.FieldIndex(f.Key) >= 0 {
			res.Skipped = append(res.Skipped, f.Key)
			continue
		}
		sc, err = e.Schemes.AddField(ctx, sc.ID, f, actor)
		if err != nil {
			return res, err
		}
		res.Added = append(res.Added, f.Key)
	}
	res.Version = sc.Version

	e.logger.Info("scheme imported", "scheme_id", sc.ID, "name", def.Name, "created", res.Created, "added", len(res.Added), "skipped", len(res.Skipped), "source", def.Source)
	return res, nil
}
