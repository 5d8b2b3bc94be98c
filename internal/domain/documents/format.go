package documents

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"isp-contracts/internal/domain/contracts"
)

// Formato del contenedor .ispdoc:
//
//	magic "ISPDOC" | version u8 | count u16 | count x {kind [4]byte | len u32 | payload} | crc32 u32
//
// Enteros big-endian. El CRC cubre todo lo anterior.
const (
	magic         = "ISPDOC"
	formatVersion = 1

	headerLen  = len(magic) + 1 + 2
	sectionHdr = 4 + 4
	trailerLen = 4

	// límite por sección; un documento de contrato nunca se acerca
	maxSectionLen = 16 << 20
)

// Tipos de sección.
const (
	KindMeta      = "META"
	KindBody      = "BODY"
	KindSignature = "SIGN"
	KindImage     = "SIMG"
)

type Section struct {
	Kind    string
	Payload []byte
}

type Document struct {
	Sections []Section
}

// Section devuelve el payload de la primera sección de ese tipo.
func (d Document) Section(kind string) ([]byte, bool) {
	for _, s := range d.Sections {
		if s.Kind == kind {
			return s.Payload, true
		}
	}
	return nil, false
}

func (d *Document) replace(kind string, payload []byte) bool {
	for i := range d.Sections {
		if d.Sections[i].Kind == kind {
			d.Sections[i].Payload = payload
			return true
		}
	}
	return false
}

func Encode(d Document) ([]byte, error) {
	if len(d.Sections) > 0xFFFF {
		return nil, fmt.Errorf("documents: too many sections (%d)", len(d.Sections))
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(formatVersion)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(d.Sections)))

	for _, s := range d.Sections {
		if len(s.Kind) != 4 {
			return nil, fmt.Errorf("documents: invalid section kind %q", s.Kind)
		}
		if len(s.Payload) > maxSectionLen {
			return nil, fmt.Errorf("documents: section %s too large", s.Kind)
		}
		buf.WriteString(s.Kind)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(s.Payload)))
		buf.Write(s.Payload)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	_ = binary.Write(&buf, binary.BigEndian, sum)
	return buf.Bytes(), nil
}

// Decode valida magic, versión, longitudes y CRC. Cualquier falla es SourceDocumentCorruptError.
func Decode(b []byte) (Document, error) {
	if len(b) < headerLen+trailerLen {
		return Document{}, corrupt("truncated")
	}
	if string(b[:len(magic)]) != magic {
		return Document{}, corrupt("bad_magic")
	}
	if b[len(magic)] != formatVersion {
		return Document{}, corrupt("unsupported_version")
	}

	body, trailer := b[:len(b)-trailerLen], b[len(b)-trailerLen:]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(trailer) {
		return Document{}, corrupt("checksum_mismatch")
	}

	count := int(binary.BigEndian.Uint16(b[len(magic)+1 : headerLen]))
	rest := body[headerLen:]
	doc := Document{Sections: make([]Section, 0, count)}

	for i := 0; i < count; i++ {
		if len(rest) < sectionHdr {
			return Document{}, corrupt("truncated_section")
		}
		kind := string(rest[:4])
		n := binary.BigEndian.Uint32(rest[4:sectionHdr])
		rest = rest[sectionHdr:]
		if n > maxSectionLen || int(n) > len(rest) {
			return Document{}, corrupt("section_length")
		}
		payload := make([]byte, n)
		copy(payload, rest[:n])
		doc.Sections = append(doc.Sections, Section{Kind: kind, Payload: payload})
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return Document{}, corrupt("trailing_bytes")
	}
	return doc, nil
}

func corrupt(reason string) error {
	return &contracts.SourceDocumentCorruptError{Reason: reason}
}
