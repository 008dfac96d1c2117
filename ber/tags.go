package ber

// TagClass is the class held in the two high bits of an identifier octet.
type TagClass byte

const (
	ClassApplication     TagClass = 0x40
	ClassContextSpecific TagClass = 0x80
)

// TagForm is bit 6 of an identifier octet.
type TagForm byte

const (
	FormPrimitive   TagForm = 0x00
	FormConstructed TagForm = 0x20
)

// Tag is a single octet identifier; tag numbers above 30 are not used by GOOSE.
type Tag byte

const (
	application     = Tag(ClassApplication)
	contextSpecific = Tag(ClassContextSpecific)
	primitive       = Tag(FormPrimitive)
	constructed     = Tag(FormConstructed)
)

// IECGoosePdu tags
const (
	GoosePdu = application | constructed | 1

	GoCBRef           = contextSpecific | primitive | 0
	TimeAllowedToLive = contextSpecific | primitive | 1
	DatSet            = contextSpecific | primitive | 2
	GoID              = contextSpecific | primitive | 3
	T                 = contextSpecific | primitive | 4
	StNum             = contextSpecific | primitive | 5
	SqNum             = contextSpecific | primitive | 6
	Simulation        = contextSpecific | primitive | 7 // "test" in Ed1
	ConfRev           = contextSpecific | primitive | 8
	NdsCom            = contextSpecific | primitive | 9
	NumDatSetEntries  = contextSpecific | primitive | 10
	AllData           = contextSpecific | constructed | 11
)
