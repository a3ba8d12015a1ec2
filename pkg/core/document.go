package core

// Document is a decoded manifest. Numbers are kept as json.Number so their
// literal form survives decoding.
type Document map[string]any

// Nodes returns the raw node collection of the document.
func (d Document) Nodes() map[string]any {
	nodes, _ := d["nodes"].(map[string]any)
	return nodes
}

// Metadata returns the raw metadata block of the document.
func (d Document) Metadata() map[string]any {
	meta, _ := d["metadata"].(map[string]any)
	return meta
}

// ProjectName returns metadata.project_name, or "" when absent.
func (d Document) ProjectName() string {
	name, _ := d.Metadata()["project_name"].(string)
	return name
}
