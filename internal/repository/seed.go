package repository

import (
	"fmt"
	"os"

	"azebot/internal/models"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Articles []seedArticle `yaml:"articles"`
}

type seedArticle struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
	Price    int64  `yaml:"price"`
}

// LoadSeed reads a YAML article catalogue. Used to populate development
// databases; payment fields are never seeded.
func LoadSeed(path string) ([]models.Article, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("error parsing seed file %s: %w", path, err)
	}
	articles := make([]models.Article, 0, len(f.Articles))
	for i, a := range f.Articles {
		if a.ID == "" {
			return nil, fmt.Errorf("seed article %d has no id", i)
		}
		if a.Price < 0 {
			return nil, fmt.Errorf("seed article %s has a negative price", a.ID)
		}
		articles = append(articles, models.Article{
			ID:            a.ID,
			Title:         a.Title,
			Category:      models.Category(a.Category),
			Price:         a.Price,
			PaymentStatus: models.PaymentStatusPending,
		})
	}
	return articles, nil
}
