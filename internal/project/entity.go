package project

import (
	"slices"
	"time"
)

type Visibility string

const (
	VisibilityPrivate   Visibility = "private"
	VisibilityWorkspace Visibility = "workspace"
	VisibilityPublic    Visibility = "public"
)

type Member struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Project struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Visibility  Visibility `yaml:"visibility"`
	// Plan is billing metadata. It never leaves the store.
	Plan       string    `yaml:"plan,omitempty"`
	Categories []string  `yaml:"categories,omitempty"`
	Members    []Member  `yaml:"members,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

func (p *Project) MemberIDs() []string {
	ids := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func (p *Project) HasCategory(name string) bool {
	return slices.Contains(p.Categories, name)
}

// AddCategory appends name to the vocabulary. It reports false when it was already there.
func (p *Project) AddCategory(name string) bool {
	if name == "" || p.HasCategory(name) {
		return false
	}
	p.Categories = append(p.Categories, name)
	return true
}
