package models

// Container kinds that can hold attachments.
const (
	ContainerIssue    = "issue"
	ContainerDocument = "document"
	ContainerWikiPage = "wiki_page"
	ContainerProject  = "project"
)

// ContainerRef identifies an object that owns attachments.
type ContainerRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Valid reports whether the reference names a known kind and an identifier.
func (c ContainerRef) Valid() bool {
	if c.ID == "" {
		return false
	}
	switch c.Kind {
	case ContainerIssue, ContainerDocument, ContainerWikiPage, ContainerProject:
		return true
	}
	return false
}
