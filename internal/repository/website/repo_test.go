package website

import (
	"context"
	"testing"

	"github.com/seamark-nav/seamark/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	seed := `
		INSERT INTO categories (id, title, icon) VALUES
			(1, 'Development', 'code'),
			(2, 'Design', 'brush');
		INSERT INTO websites (id, title, description, url, icon, category_id, views, is_private, created_by_id, visible_to) VALUES
			(1, 'GitHub', 'Code hosting platform', 'https://github.com', '', 1, 100, 0, 0, ''),
			(2, 'Figma', 'Design tool', 'https://figma.com', '', 2, 50, 0, 0, ''),
			(3, 'Internal Wiki', 'Private team docs', 'https://wiki.internal', '', 1, 10, 1, 7, ''),
			(4, 'Shared Board', 'Private design board', 'https://board.internal', '', 2, 5, 1, 7, '3,9'),
			(5, 'GitLab', 'Code hosting and CI', 'https://gitlab.com', '', 1, 80, 0, 0, '');
	`
	if _, err := r.db.Exec(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return r
}

func ids(ws []domain.Website) []int64 {
	out := make([]int64, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func equalIDs(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch_CaseInsensitiveAcrossFields(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	admin := domain.Viewer{ID: 1, IsAdmin: true}

	// Title match, mixed case.
	got, err := r.Search(ctx, "gitHUB", admin, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equalIDs(ids(got), 1) {
		t.Errorf("title match: got %v", ids(got))
	}

	// Description match.
	got, _ = r.Search(ctx, "hosting", admin, 10)
	if !equalIDs(ids(got), 1, 5) {
		t.Errorf("description match should be in store order: got %v", ids(got))
	}

	// URL match.
	got, _ = r.Search(ctx, "figma.com", admin, 10)
	if !equalIDs(ids(got), 2) {
		t.Errorf("url match: got %v", ids(got))
	}
}

func TestSearch_EmptyTermMatchesNothing(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.Search(context.Background(), "   ", domain.Viewer{IsAdmin: true}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got != nil {
		t.Errorf("expected no rows, got %v", ids(got))
	}
}

func TestSearch_Visibility(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		viewer domain.Viewer
		want   []int64
	}{
		{"anonymous sees public only", domain.Viewer{}, []int64{1, 2, 5}},
		{"admin sees everything", domain.Viewer{ID: 2, IsAdmin: true}, []int64{1, 2, 3, 4, 5}},
		{"owner sees own private", domain.Viewer{ID: 7}, []int64{1, 2, 3, 4, 5}},
		{"shared-with user sees granted entry", domain.Viewer{ID: 9}, []int64{1, 2, 4, 5}},
		{"unrelated user sees public only", domain.Viewer{ID: 42}, []int64{1, 2, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Search(ctx, "o", tt.viewer, 100) // matches every seeded row
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if !equalIDs(ids(got), tt.want...) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestSearch_VisibleToIsExactIDMatch(t *testing.T) {
	r := newTestRepo(t)
	// visible_to for site 4 is "3,9": viewer 39 must not match by substring.
	got, err := r.Search(context.Background(), "board", domain.Viewer{ID: 39}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("viewer 39 must not see entry shared with 3 and 9: got %v", ids(got))
	}
}

func TestSearch_Limit(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.Search(context.Background(), "o", domain.Viewer{IsAdmin: true}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equalIDs(ids(got), 1, 2) {
		t.Errorf("limit should keep the first rows in store order: got %v", ids(got))
	}
}

func TestByIDs_PreservesRequestedOrder(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.ByIDs(context.Background(), []int64{5, 999, 1, 2}, domain.Viewer{})
	if err != nil {
		t.Fatalf("byids: %v", err)
	}
	if !equalIDs(ids(got), 5, 1, 2) {
		t.Errorf("got %v, want [5 1 2]", ids(got))
	}
}

func TestByIDs_FiltersInvisible(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.ByIDs(context.Background(), []int64{3, 4, 1}, domain.Viewer{ID: 9})
	if err != nil {
		t.Fatalf("byids: %v", err)
	}
	if !equalIDs(ids(got), 4, 1) {
		t.Errorf("viewer 9 should see shared entry 4 but not 3: got %v", ids(got))
	}
}

func TestByIDs_Empty(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.ByIDs(context.Background(), nil, domain.Viewer{})
	if err != nil {
		t.Fatalf("byids: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", ids(got))
	}
}

func TestAll_ReturnsEverything(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if !equalIDs(ids(got), 1, 2, 3, 4, 5) {
		t.Errorf("got %v", ids(got))
	}
	if got[0].Category != "Development" || got[0].CategoryIcon != "code" {
		t.Errorf("category join missing: %+v", got[0])
	}
}

func TestCategories(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Development" || got[1].Name != "Design" {
		t.Errorf("got %+v", got)
	}
}
