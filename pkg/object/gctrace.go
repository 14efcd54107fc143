package object

import (
	"fmt"
	"io"
)

func writeGCTrace(w io.Writer, before, after, freed, nextGC int) {
	fmt.Fprintf(w, "-- gc collected %d objects, %d -> %d bytes, next at %d\n",
		freed, before, after, nextGC)
}
