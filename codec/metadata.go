package codec

import (
	"errors"

	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// Bounds applied while decoding leaf payloads. Tighter limits are enforced by the
// compression protocol, not by the decoder.
const (
	maxMetadataString   = 1024
	maxMetadataCreators = 64
)

// MetadataArgs writes a leaf payload in the layout its data hash covers.
func (e *Encoder) MetadataArgs(m *interfaces.MetadataArgs) {
	e.String(m.Name)
	e.String(m.Symbol)
	e.String(m.URI)
	e.U16(m.SellerFeeBasisPoints)
	e.Bool(m.PrimarySaleHappened)
	e.Bool(m.IsMutable)
	if e.OptionTag(m.EditionNonce != nil) {
		e.U8(*m.EditionNonce)
	}
	if e.OptionTag(m.TokenStandard != nil) {
		e.U8(uint8(*m.TokenStandard))
	}
	if e.OptionTag(m.Collection != nil) {
		e.Bool(m.Collection.Verified)
		e.Pubkey(m.Collection.Key)
	}
	// uses
	e.OptionTag(false)
	e.U8(uint8(m.TokenProgramVersion))
	e.U32(uint32(len(m.Creators)))
	for _, c := range m.Creators {
		e.Pubkey(c.Address)
		e.Bool(c.Verified)
		e.U8(c.Share)
	}
}

// MetadataArgs reads a leaf payload written by Encoder.MetadataArgs.
func (d *Decoder) MetadataArgs() *interfaces.MetadataArgs {
	m := &interfaces.MetadataArgs{
		Name:                 d.String(maxMetadataString),
		Symbol:               d.String(maxMetadataString),
		URI:                  d.String(maxMetadataString),
		SellerFeeBasisPoints: d.U16(),
		PrimarySaleHappened:  d.Bool(),
		IsMutable:            d.Bool(),
	}
	if d.OptionTag() {
		nonce := d.U8()
		m.EditionNonce = &nonce
	}
	if d.OptionTag() {
		standard := interfaces.TokenStandard(d.U8())
		m.TokenStandard = &standard
	}
	if d.OptionTag() {
		m.Collection = &interfaces.LeafCollection{Verified: d.Bool(), Key: d.Pubkey()}
	}
	if d.OptionTag() {
		d.Fail(errors.New("codec: uses are not supported"))
		return m
	}
	m.TokenProgramVersion = interfaces.TokenProgramVersion(d.U8())
	n := d.VecLen(maxMetadataCreators)
	m.Creators = make([]interfaces.Creator, 0, n)
	for i := 0; i < n; i++ {
		m.Creators = append(m.Creators, interfaces.Creator{
			Address:  d.Pubkey(),
			Verified: d.Bool(),
			Share:    d.U8(),
		})
	}
	return m
}
