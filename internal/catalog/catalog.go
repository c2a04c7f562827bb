// Package catalog reads the order, mold and labor records that seed a
// workspace from a YAML file.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"moldline/internal/domain"
)

type File struct {
	Orders  []OrderEntry  `yaml:"orders" validate:"dive"`
	Molds   []MoldEntry   `yaml:"molds" validate:"dive"`
	Workers []WorkerEntry `yaml:"workers" validate:"dive"`
}

type OrderEntry struct {
	ID        string         `yaml:"id" validate:"required"`
	Product   string         `yaml:"product" validate:"required"`
	OrderDate string         `yaml:"order_date" validate:"required,datetime=2006-01-02"`
	DueDate   string         `yaml:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Features  map[string]any `yaml:"features"`
}

type MoldEntry struct {
	ID         string   `yaml:"id" validate:"required"`
	Name       string   `yaml:"name"`
	Products   []string `yaml:"products" validate:"dive,required"`
	Multiplier int      `yaml:"multiplier" validate:"min=0"`
	Active     *bool    `yaml:"active"`
}

type WorkerEntry struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name"`
	Department  string `yaml:"department" validate:"required"`
	Rate        string `yaml:"rate" validate:"required,decimal"`
	HoursPerDay string `yaml:"hours_per_day" validate:"required,decimal"`
	Active      *bool  `yaml:"active"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && !d.IsNegative()
	})
	return v
}

// Load reads and validates a catalog file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML. IDs must be unique per section.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", describe(err))
	}
	if err := uniqueIDs(f); err != nil {
		return nil, err
	}
	return &f, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func uniqueIDs(f File) error {
	check := func(kind string, ids []string) error {
		seen := map[string]bool{}
		for _, id := range ids {
			if seen[id] {
				return fmt.Errorf("invalid catalog: duplicate %s id %s", kind, id)
			}
			seen[id] = true
		}
		return nil
	}
	var orders, molds, workers []string
	for _, o := range f.Orders {
		orders = append(orders, o.ID)
	}
	for _, m := range f.Molds {
		molds = append(molds, m.ID)
	}
	for _, w := range f.Workers {
		workers = append(workers, w.ID)
	}
	if err := check("order", orders); err != nil {
		return err
	}
	if err := check("mold", molds); err != nil {
		return err
	}
	return check("worker", workers)
}

// Records converts the file into domain records stamped with now.
func (f *File) Records(now time.Time) ([]domain.Order, []domain.Mold, []domain.Worker, error) {
	stamp := now.UTC().Format(time.RFC3339)
	orders := make([]domain.Order, 0, len(f.Orders))
	for _, e := range f.Orders {
		o := domain.Order{ID: e.ID, Product: e.Product, CreatedAt: stamp, UpdatedAt: stamp}
		od, err := time.Parse(domain.DateLayout, e.OrderDate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("order %s: %w", e.ID, err)
		}
		o.OrderDate = od
		if e.DueDate != "" {
			due, err := time.Parse(domain.DateLayout, e.DueDate)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("order %s: %w", e.ID, err)
			}
			o.DueDate = &due
		}
		if len(e.Features) > 0 {
			raw, err := json.Marshal(e.Features)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("order %s features: %w", e.ID, err)
			}
			o.FeaturesJSON = string(raw)
		}
		orders = append(orders, o)
	}
	molds := make([]domain.Mold, 0, len(f.Molds))
	for _, e := range f.Molds {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		molds = append(molds, domain.Mold{ID: e.ID, Name: name, Products: e.Products, Multiplier: e.Multiplier, Active: enabled(e.Active)})
	}
	workers := make([]domain.Worker, 0, len(f.Workers))
	for _, e := range f.Workers {
		workers = append(workers, domain.Worker{
			ID:          e.ID,
			Name:        e.Name,
			Department:  e.Department,
			Rate:        decimal.RequireFromString(strings.TrimSpace(e.Rate)),
			HoursPerDay: decimal.RequireFromString(strings.TrimSpace(e.HoursPerDay)),
			Active:      enabled(e.Active),
		})
	}
	return orders, molds, workers, nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}
