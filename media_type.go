package client

// MediaType is the media type of an uploaded or downloaded file. The named
// constants are the types the platform renders natively; any other name
// parses to a MediaType for which IsKnown reports false.
type MediaType string

const (
	MediaTypeImagePNG          MediaType = "image/png"
	MediaTypeImageJPEG         MediaType = "image/jpeg"
	MediaTypeImageBMP          MediaType = "image/bmp"
	MediaTypeImageGIF          MediaType = "image/gif"
	MediaTypePDF               MediaType = "application/pdf"
	MediaTypePowerPoint        MediaType = "application/vnd.ms-powerpoint"
	MediaTypePowerPointOpenXML MediaType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MediaTypeWord              MediaType = "application/msword"
	MediaTypeWordOpenXML       MediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ParseMediaType returns the MediaType for name.
func ParseMediaType(name string) MediaType {
	return MediaType(name)
}

// IsKnown reports whether m is one of the named media types.
func (m MediaType) IsKnown() bool {
	switch m {
	case MediaTypeImagePNG, MediaTypeImageJPEG, MediaTypeImageBMP, MediaTypeImageGIF,
		MediaTypePDF, MediaTypePowerPoint, MediaTypePowerPointOpenXML,
		MediaTypeWord, MediaTypeWordOpenXML:
		return true
	}
	return false
}

func (m MediaType) String() string {
	return string(m)
}
