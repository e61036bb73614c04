package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const cityHallColumns = `id, name, cnpj, email, phone, address, city, state, zip_code, active, created_at, updated_at`

// CityHallExists confirma a existência da prefeitura.
func (q *Queries) CityHallExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM city_halls WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// HealthUnitCityID devolve a prefeitura dona da unidade.
func (q *Queries) HealthUnitCityID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	var cityID uuid.UUID
	err := q.db.QueryRow(ctx, `SELECT city_hall_id FROM health_units WHERE id = $1`, id).Scan(&cityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return cityID, true, nil
}

// ListCityHalls lista prefeituras; cityID restringe a uma única.
func (q *Queries) ListCityHalls(ctx context.Context, cityID *uuid.UUID) ([]CityHall, error) {
	query := `SELECT ` + cityHallColumns + ` FROM city_halls WHERE ($1::uuid IS NULL OR id = $1) ORDER BY name ASC`
	rows, err := q.db.Query(ctx, query, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CityHall
	for rows.Next() {
		c, err := scanCityHall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCityHall busca prefeitura por ID.
func (q *Queries) GetCityHall(ctx context.Context, id uuid.UUID) (CityHall, error) {
	query := `SELECT ` + cityHallColumns + ` FROM city_halls WHERE id = $1`
	return scanCityHall(q.db.QueryRow(ctx, query, id))
}

// InsertCityHall cria prefeitura.
func (q *Queries) InsertCityHall(ctx context.Context, c CityHall) (CityHall, error) {
	query := `
        INSERT INTO city_halls (id, name, cnpj, email, phone, address, city, state, zip_code, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING ` + cityHallColumns
	row := q.db.QueryRow(ctx, query,
		uuid.New(), strings.TrimSpace(c.Name), strings.TrimSpace(c.CNPJ), strings.ToLower(strings.TrimSpace(c.Email)),
		c.Phone, c.Address, c.City, strings.ToUpper(c.State), c.ZipCode, c.Active,
	)
	return scanCityHall(row)
}

// UpdateCityHall altera prefeitura.
func (q *Queries) UpdateCityHall(ctx context.Context, c CityHall) (CityHall, error) {
	query := `
        UPDATE city_halls
        SET name = $2, cnpj = $3, email = $4, phone = $5, address = $6, city = $7,
            state = $8, zip_code = $9, active = $10, updated_at = now()
        WHERE id = $1
        RETURNING ` + cityHallColumns
	row := q.db.QueryRow(ctx, query,
		c.ID, strings.TrimSpace(c.Name), strings.TrimSpace(c.CNPJ), strings.ToLower(strings.TrimSpace(c.Email)),
		c.Phone, c.Address, c.City, strings.ToUpper(c.State), c.ZipCode, c.Active,
	)
	return scanCityHall(row)
}

// DeleteCityHall remove prefeitura sem unidades vinculadas.
func (q *Queries) DeleteCityHall(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM city_halls WHERE id = $1`, id)
	if err != nil {
		return mapFKErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const healthUnitColumns = `id, city_hall_id, name, address, city, state, zip_code, phone, email, created_at, updated_at`

// ListHealthUnits lista unidades conforme o território.
func (q *Queries) ListHealthUnits(ctx context.Context, filter TerritoryFilter) ([]HealthUnit, error) {
	query := `SELECT ` + healthUnitColumns + ` FROM health_units
        WHERE ($1::uuid IS NULL OR city_hall_id = $1)
          AND ($2::uuid IS NULL OR id = $2)
        ORDER BY name ASC`
	rows, err := q.db.Query(ctx, query, filter.CityID, filter.HealthUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HealthUnit
	for rows.Next() {
		h, err := scanHealthUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetHealthUnit busca unidade por ID.
func (q *Queries) GetHealthUnit(ctx context.Context, id uuid.UUID) (HealthUnit, error) {
	query := `SELECT ` + healthUnitColumns + ` FROM health_units WHERE id = $1`
	return scanHealthUnit(q.db.QueryRow(ctx, query, id))
}

// InsertHealthUnit cria unidade.
func (q *Queries) InsertHealthUnit(ctx context.Context, h HealthUnit) (HealthUnit, error) {
	query := `
        INSERT INTO health_units (id, city_hall_id, name, address, city, state, zip_code, phone, email)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING ` + healthUnitColumns
	row := q.db.QueryRow(ctx, query,
		uuid.New(), h.CityHallID, strings.TrimSpace(h.Name), h.Address, h.City, strings.ToUpper(h.State), h.ZipCode, h.Phone, h.Email,
	)
	return scanHealthUnit(row)
}

// UpdateHealthUnit altera unidade.
func (q *Queries) UpdateHealthUnit(ctx context.Context, h HealthUnit) (HealthUnit, error) {
	query := `
        UPDATE health_units
        SET city_hall_id = $2, name = $3, address = $4, city = $5, state = $6, zip_code = $7,
            phone = $8, email = $9, updated_at = now()
        WHERE id = $1
        RETURNING ` + healthUnitColumns
	row := q.db.QueryRow(ctx, query,
		h.ID, h.CityHallID, strings.TrimSpace(h.Name), h.Address, h.City, strings.ToUpper(h.State), h.ZipCode, h.Phone, h.Email,
	)
	return scanHealthUnit(row)
}

// DeleteHealthUnit remove unidade sem vínculos.
func (q *Queries) DeleteHealthUnit(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM health_units WHERE id = $1`, id)
	if err != nil {
		return mapFKErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapFKErr(err error) error {
	if isForeignKeyViolation(err) {
		return ErrInUse
	}
	return mapErr(err)
}

func scanCityHall(row pgx.Row) (CityHall, error) {
	var c CityHall
	if err := row.Scan(&c.ID, &c.Name, &c.CNPJ, &c.Email, &c.Phone, &c.Address, &c.City, &c.State, &c.ZipCode,
		&c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return CityHall{}, mapErr(err)
	}
	return c, nil
}

func scanHealthUnit(row pgx.Row) (HealthUnit, error) {
	var h HealthUnit
	if err := row.Scan(&h.ID, &h.CityHallID, &h.Name, &h.Address, &h.City, &h.State, &h.ZipCode, &h.Phone, &h.Email,
		&h.CreatedAt, &h.UpdatedAt); err != nil {
		return HealthUnit{}, mapErr(err)
	}
	return h, nil
}
