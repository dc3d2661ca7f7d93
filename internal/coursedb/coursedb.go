// Package coursedb loads course definitions from their on-disk layout:
//
//	<course>/infoCourse.json
//	<course>/questions/<qid...>/info.json
//
// Files are decoded as YAML, so JSON files and their .yaml equivalents are
// both accepted.
package coursedb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

var courseInfoFiles = []string{"infoCourse.json", "infoCourse.yaml", "infoCourse.yml"}

var questionInfoFiles = []string{"info.json", "info.yaml", "info.yml"}

// Tag is an entry of the course tag catalog.
type Tag struct {
	Name        string `yaml:"name" json:"name"`
	Color       string `yaml:"color" json:"color"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Question is a question's info file. QID is derived from its directory.
type Question struct {
	QID   string   `yaml:"-" json:"qid"`
	UUID  string   `yaml:"uuid" json:"uuid"`
	Title string   `yaml:"title" json:"title"`
	Topic string   `yaml:"topic" json:"topic"`
	Type  string   `yaml:"type" json:"type"`
	Tags  []string `yaml:"tags" json:"tags"`
}

// Course is a fully loaded course directory.
type Course struct {
	Path      string     `yaml:"-" json:"path"`
	UUID      string     `yaml:"uuid" json:"uuid"`
	Name      string     `yaml:"name" json:"name"`
	Title     string     `yaml:"title" json:"title"`
	Tags      []Tag      `yaml:"tags" json:"tags"`
	Questions []Question `yaml:"-" json:"questions"`
}

// Load reads the course rooted at dir. Questions are sorted by qid.
func Load(dir string) (*Course, error) {
	infoPath, err := findCourseInfo(dir)
	if err != nil {
		return nil, err
	}

	var course Course
	if err := decodeFile(infoPath, &course); err != nil {
		return nil, err
	}
	course.Path = dir
	if course.Name == "" {
		return nil, fmt.Errorf("%s: missing course name", infoPath)
	}

	questions, err := loadQuestions(filepath.Join(dir, "questions"))
	if err != nil {
		return nil, err
	}
	course.Questions = questions
	return &course, nil
}

func findCourseInfo(dir string) (string, error) {
	for _, name := range courseInfoFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: no infoCourse.json found", dir)
}

func loadQuestions(root string) ([]Question, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var questions []Question
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}

		infoPath, ok := questionInfo(path)
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		var q Question
		if err := decodeFile(infoPath, &q); err != nil {
			return err
		}
		q.QID = filepath.ToSlash(rel)
		questions = append(questions, q)

		// Everything below a question directory belongs to that question.
		return fs.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}

	sort.Slice(questions, func(i, j int) bool { return questions[i].QID < questions[j].QID })
	return questions, nil
}

func questionInfo(dir string) (string, bool) {
	for _, name := range questionInfoFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("%s: empty file", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
