package rasterfn

// key metadata names and values
const (
	KeyDataType      = "datatype"
	KeyWavelengthMin = "wavelengthmin"
	KeyWavelengthMax = "wavelengthmax"

	DataTypeProcessed = "Processed"

	// RasterIndex is the bandIndex of the whole-raster metadata call.
	RasterIndex = -1
)

// KeyMetadata holds descriptive attributes of a raster or band.
type KeyMetadata map[string]any

// Clone returns a shallow copy; nil stays an empty map.
func (md KeyMetadata) Clone() KeyMetadata {
	c := make(KeyMetadata, len(md)+2)
	for k, v := range md {
		c[k] = v
	}
	return c
}

/*
AnnotateDerived marks the output raster as processed and clears the
wavelength range of its band, which is meaningless for a derived measure.
Other band indices are returned unchanged. md itself is not modified.
*/
func AnnotateDerived(bandIndex int, md KeyMetadata) KeyMetadata {
	out := md.Clone()
	switch bandIndex {
	case RasterIndex:
		out[KeyDataType] = DataTypeProcessed
	case 0:
		out[KeyWavelengthMin] = nil
		out[KeyWavelengthMax] = nil
	}
	return out
}
