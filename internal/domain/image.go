package domain

import "encoding/base64"

// Image is a generated image as returned by the inference endpoint
type Image struct {
	Data        []byte
	ContentType string
}

// Base64 returns the image bytes as standard padded base64 text
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}
