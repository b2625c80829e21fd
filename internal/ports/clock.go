package ports

// Clock supplies the node time embedded in every encoded package.
type Clock interface {
	// NodeTime returns the node's mesh time in microseconds. It wraps.
	NodeTime() uint32
}
