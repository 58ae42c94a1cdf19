package server

import (
	"context"
	"database/sql"
	"log/slog"
)

type seedCategory struct {
	Name        string
	DisplayName string
	Description string
	Items       []string
}

var seedCategories = []seedCategory{
	{
		Name:        "fruits",
		DisplayName: "Fruits",
		Description: "Fruit names",
		Items: []string{
			"Apple", "Banana", "Orange", "Mango", "Pineapple", "Strawberry",
			"Blueberry", "Raspberry", "Blackberry", "Cherry", "Grape", "Melon",
			"Watermelon", "Peach", "Pear", "Plum", "Apricot", "Kiwi", "Lemon",
			"Lime", "Grapefruit", "Papaya", "Guava", "Lychee", "Fig", "Date",
			"Pomegranate", "Coconut", "Passion Fruit", "Dragon Fruit",
		},
	},
	{
		Name:        "countries",
		DisplayName: "Countries",
		Description: "World countries",
		Items: []string{
			"United States", "Canada", "Mexico", "Brazil", "Argentina", "Chile",
			"Peru", "United Kingdom", "France", "Germany", "Italy", "Spain",
			"Portugal", "Netherlands", "Belgium", "Switzerland", "Austria",
			"Sweden", "Norway", "Denmark", "Finland", "Russia", "China", "Japan",
			"South Korea", "India", "Australia", "New Zealand", "South Africa",
			"Egypt", "Nigeria", "Kenya", "Morocco", "Tunisia", "Algeria",
		},
	},
	{
		Name:        "animals",
		DisplayName: "Animals",
		Description: "Animal names",
		Items: []string{
			"Lion", "Tiger", "Elephant", "Giraffe", "Zebra", "Monkey", "Bear",
			"Wolf", "Fox", "Deer", "Rabbit", "Squirrel", "Cat", "Dog", "Horse",
			"Cow", "Pig", "Sheep", "Goat", "Chicken", "Duck", "Eagle", "Owl",
			"Parrot", "Penguin", "Dolphin", "Whale", "Shark", "Octopus",
			"Jellyfish", "Butterfly", "Bee", "Spider", "Snake", "Lizard", "Frog",
			"Turtle", "Crocodile", "Alligator",
		},
	},
	{
		Name:        "programming_languages",
		DisplayName: "Programming Languages",
		Description: "Programming languages",
		Items: []string{
			"Python", "JavaScript", "Java", "C++", "C#", "PHP", "Ruby", "Go",
			"Rust", "Swift", "Kotlin", "TypeScript", "Scala", "R", "MATLAB",
			"Perl", "Haskell", "Clojure", "Erlang", "Elixir", "Dart", "Julia",
			"Lua", "Assembly", "COBOL", "Fortran", "Pascal", "Ada", "Lisp",
			"Prolog", "Smalltalk", "Objective-C", "Visual Basic",
		},
	},
}

// SeedCategories inserts the built-in categories and their items if the
// categories table is empty. Idempotent.
func SeedCategories(ctx context.Context, logger *slog.Logger, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range seedCategories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (name, display_name, description) VALUES (?, ?, ?)
		`, c.Name, c.DisplayName, c.Description)
		if err != nil {
			return err
		}
		for _, item := range c.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO category_items (category, item) VALUES (?, ?)
			`, c.Name, item)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Info("seeded categories", "count", len(seedCategories))
	return nil
}
