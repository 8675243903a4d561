package render

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors.
	EdgeTrue   string // CONDITION_TRUE branches and the entry block
	EdgeFalse  string // CONDITION_FALSE branches
	EdgeDirect string // unconditional branches and calls
	EdgeSwitch string // SWITCH branches

	// Node accents by function type.
	StubFill     string // terminal blocks, thunks
	LibraryFill  string // LIBRARY functions
	ExternalText string // IMPORTED functions and unnamed targets

	CommentText string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeTrue:   "#0B3D91", // NASA blue
	EdgeFalse:  "#FC3D21", // NASA red
	EdgeDirect: "#424242", // dark gray
	EdgeSwitch: "#00695C", // teal

	StubFill:     "#ECEFF1", // blue-gray 50
	LibraryFill:  "#E0E0E0",
	ExternalText: "#9E9E9E",

	CommentText: "#757575",
}
