// README: Shared identifier and geo point types.
package types

type ID string

func (id ID) String() string { return string(id) }

type Point struct {
	Lat float64
	Lng float64
}
