package domain

// Website is a read-only snapshot of an item in the navigation store.
// Lifecycle is owned by the web application; this service only reads
// snapshots at query time.
type Website struct {
	ID           int64
	Title        string
	Description  string
	URL          string
	Icon         string
	CategoryID   int64
	Category     string
	CategoryIcon string
	Views        int64
	IsPrivate    bool
	CreatedByID  int64
	VisibleTo    string // comma-separated user ids granted explicit access
}

// Viewer identifies who is searching. The zero value is an anonymous viewer.
type Viewer struct {
	ID      int64
	IsAdmin bool
}

// Anonymous reports whether the viewer is not signed in.
func (v Viewer) Anonymous() bool { return v.ID == 0 }

// CategoryView is the public shape of a website's category.
type CategoryView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// WebsiteView is the public shape of a search hit returned to the web layer.
type WebsiteView struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	Icon        string        `json:"icon"`
	Category    *CategoryView `json:"category"`
	Views       int64         `json:"views"`
	IsPrivate   bool          `json:"is_private"`
	VectorScore float64       `json:"vector_score,omitempty"`
}

// ViewOf shapes a website snapshot into its public view.
func ViewOf(w Website) WebsiteView {
	view := WebsiteView{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		URL:         w.URL,
		Icon:        w.Icon,
		Views:       w.Views,
		IsPrivate:   w.IsPrivate,
	}
	if w.CategoryID != 0 {
		view.Category = &CategoryView{ID: w.CategoryID, Name: w.Category, Icon: w.CategoryIcon}
	}
	return view
}
