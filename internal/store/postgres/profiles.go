package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

const profileCols = `id, nome, email, telefone, foto_url, cidade, tipo, descricao,
	preco_minimo, preco_maximo, disponivel, avaliacao_media, total_avaliacoes, created_at, updated_at`

func scanProfile(s interface{ Scan(dest ...any) error }, p *model.Profile) error {
	return s.Scan(&p.ID, &p.Nome, &p.Email, &p.Telefone, &p.FotoURL, &p.Cidade,
		&p.Tipo, &p.Descricao, &p.PrecoMinimo, &p.PrecoMaximo, &p.Disponivel,
		&p.AvaliacaoMedia, &p.TotalAvaliacoes, &p.CreatedAt, &p.UpdatedAt)
}

func (st *Store) Profile(ctx context.Context, id string) (model.Profile, error) {
	defer logger.DeferLogDuration("pg.GetProfile", time.Now())()
	var p model.Profile
	row := st.pool.QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE id = $1`, id,
	)
	if err := scanProfile(row, &p); err != nil {
		return model.Profile{}, mapErr("pg.GetProfile", err)
	}
	return p, nil
}

func (st *Store) ListFreelancers(ctx context.Context) ([]model.Profile, error) {
	defer logger.DeferLogDuration("pg.ListFreelancers", time.Now())()
	return st.queryProfiles(ctx, "pg.ListFreelancers",
		`SELECT `+profileCols+`
		 FROM profiles
		 WHERE tipo = 'freelancer'
		 ORDER BY created_at DESC`)
}

// Search filters freelancers by a case-insensitive substring over nome,
// descricao and cidade, optionally restricted to a category.
func (st *Store) Search(ctx context.Context, query, categoryID string) ([]model.Profile, error) {
	defer logger.DeferLogDuration("pg.SearchFreelancers", time.Now())()
	q := `SELECT ` + profileCols + `
	 FROM profiles
	 WHERE tipo = 'freelancer'
	   AND (nome ILIKE '%' || $1 || '%'
	     OR descricao ILIKE '%' || $1 || '%'
	     OR cidade ILIKE '%' || $1 || '%')`
	args := []any{query}
	if categoryID != "" {
		q += ` AND id IN (SELECT freelancer_id FROM services WHERE category_id = $2)`
		args = append(args, categoryID)
	}
	q += ` ORDER BY created_at DESC`
	return st.queryProfiles(ctx, "pg.SearchFreelancers", q, args...)
}

func (st *Store) queryProfiles(ctx context.Context, op, q string, args ...any) ([]model.Profile, error) {
	rows, err := st.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", op, err)
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}

func (st *Store) Categories(ctx context.Context) ([]model.Category, error) {
	defer logger.DeferLogDuration("pg.Categories", time.Now())()
	rows, err := st.pool.Query(ctx,
		`SELECT id, nome, descricao, icone, created_at FROM categories ORDER BY nome`)
	if err != nil {
		return nil, fmt.Errorf("pg.Categories query: %w", err)
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Nome, &c.Descricao, &c.Icone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg.Categories scan: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg.Categories rows: %w", err)
	}
	return cats, nil
}

func (st *Store) ServicesByFreelancer(ctx context.Context, freelancerID string) ([]model.Service, error) {
	defer logger.DeferLogDuration("pg.ServicesByFreelancer", time.Now())()
	rows, err := st.pool.Query(ctx,
		`SELECT id, freelancer_id, category_id, nome, descricao, preco, ativo, created_at
		 FROM services
		 WHERE freelancer_id = $1
		 ORDER BY created_at DESC`, freelancerID)
	if err != nil {
		return nil, fmt.Errorf("pg.ServicesByFreelancer query: %w", err)
	}
	defer rows.Close()

	var svcs []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.FreelancerID, &s.CategoryID, &s.Nome, &s.Descricao, &s.Preco, &s.Ativo, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg.ServicesByFreelancer scan: %w", err)
		}
		svcs = append(svcs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg.ServicesByFreelancer rows: %w", err)
	}
	return svcs, nil
}
