package domain

// WidgetPlacement positions one widget on the operator dashboard grid.
type WidgetPlacement struct {
	Widget string `json:"widget"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// DashboardSettings is the persisted widget layout for the web dashboard.
type DashboardSettings struct {
	Widgets    []string          `json:"widgets"`
	Placements []WidgetPlacement `json:"placements,omitempty"`
}
