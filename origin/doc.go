// Package origin implements the process-local registry mapping paths
// to live broadcasts: the connective tissue between locally published
// broadcasts and incoming subscribes, and the source of Announce
// fan-out for interested peers.
package origin
