package btree

// BufferGroup is an ordered, finite sequence of byte segments
// representing one value's bytes. Segments alias underlying storage
// that may be released as soon as the delivery that carried the group
// completes, so consumers must copy whatever they need before
// signaling completion.
type BufferGroup struct {
	segments [][]byte
}

// Reset empties the group so it can be reused for the next value
func (group *BufferGroup) Reset() {
	group.segments = group.segments[:0]
}

// Add appends a segment to the group
func (group *BufferGroup) Add(segment []byte) {
	group.segments = append(group.segments, segment)
}

// NumSegments returns the number of segments in the group
func (group *BufferGroup) NumSegments() int {
	return len(group.segments)
}

// Segment returns the i'th segment
func (group *BufferGroup) Segment(i int) []byte {
	return group.segments[i]
}

// Size returns the total byte length of all segments
func (group *BufferGroup) Size() int64 {
	var size int64

	for _, segment := range group.segments {
		size += int64(len(segment))
	}

	return size
}

// Bytes copies all segments, in order, into a single new slice
func (group *BufferGroup) Bytes() []byte {
	data := make([]byte, 0, group.Size())

	for _, segment := range group.segments {
		data = append(data, segment...)
	}

	return data
}
