package rrdata

import (
	"fmt"
	"strings"
)

// EncodeTXTData encodes a TXT record string into length-prefixed character
// strings of at most 255 octets each.
func EncodeTXTData(data string) ([]byte, error) {
	var encoded []byte
	for len(data) > 255 {
		encoded = append(encoded, 255)
		encoded = append(encoded, data[:255]...)
		data = data[255:]
	}
	encoded = append(encoded, byte(len(data)))
	encoded = append(encoded, data...)
	return encoded, nil
}

// decodeTXTData decodes TXT RDATA (one or more length-prefixed character
// strings) into a single concatenated string.
func decodeTXTData(data []byte) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(data); {
		l := int(data[i])
		i++
		if i+l > len(data) {
			return "", fmt.Errorf("invalid TXT record encoding")
		}
		sb.Write(data[i : i+l])
		i += l
	}
	return sb.String(), nil
}
