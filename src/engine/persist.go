package engine

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/chacha20poly1305"

	"emberdb/src/helpers"
	"emberdb/src/schema"
)

const currentFileFormat = int32(1)

// encryptedMagic prefixes encrypted files. A plain BSON document can
// never start with these bytes (its first four bytes are a length).
var encryptedMagic = []byte("EMBX1")

type fileDoc struct {
	Format  int32      `bson:"format"`
	Version int64      `bson:"version"`
	Classes []classDoc `bson:"classes"`
}

type classDoc struct {
	Key        string    `bson:"key"`
	Name       string    `bson:"name"`
	TableType  string    `bson:"tableType"`
	PrimaryKey string    `bson:"primaryKey,omitempty"`
	Properties []propDoc `bson:"properties"`
	Rows       []rowDoc  `bson:"rows"`
}

type propDoc struct {
	Name       string `bson:"name"`
	Type       string `bson:"type"`
	Optional   bool   `bson:"optional,omitempty"`
	ObjectType string `bson:"objectType,omitempty"`
}

type rowDoc struct {
	Key    string                 `bson:"key"`
	Values map[string]interface{} `bson:"values"`
}

func encodeFile(doc fileDoc, key []byte) ([]byte, error) {
	payload, err := helpers.EncodeBSON(doc)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return payload, nil
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("error building cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("error generating nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, payload, encryptedMagic)

	out := make([]byte, 0, len(encryptedMagic)+len(nonce)+len(sealed))
	out = append(out, encryptedMagic...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func decodeFile(data []byte, key []byte) (fileDoc, error) {
	var doc fileDoc

	if bytes.HasPrefix(data, encryptedMagic) {
		if len(key) == 0 {
			return doc, fmt.Errorf("%w: file is encrypted and no key was supplied", ErrBadEncryptionKey)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return doc, fmt.Errorf("error building cipher: %w", err)
		}
		rest := data[len(encryptedMagic):]
		if len(rest) < chacha20poly1305.NonceSizeX {
			return doc, fmt.Errorf("%w: truncated header", ErrBadEncryptionKey)
		}
		nonce, sealed := rest[:chacha20poly1305.NonceSizeX], rest[chacha20poly1305.NonceSizeX:]
		data, err = aead.Open(nil, nonce, sealed, encryptedMagic)
		if err != nil {
			return doc, fmt.Errorf("%w: %v", ErrBadEncryptionKey, err)
		}
	} else if len(key) != 0 {
		return doc, fmt.Errorf("%w: file is not encrypted", ErrBadEncryptionKey)
	}

	if err := helpers.DecodeBSON(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// snapshotDoc renders the session's live state into its file form.
// Caller holds the session lock.
func (s *Session) snapshotDoc() fileDoc {
	doc := fileDoc{Format: currentFileFormat, Version: s.schemaVersion}
	for _, c := range s.schema {
		table := s.tables[s.tablesByName[c.Name]]
		cd := classDoc{
			Key:        string(table.key),
			Name:       c.Name,
			TableType:  string(c.TableType),
			PrimaryKey: c.PrimaryKey,
		}
		for _, p := range c.Properties {
			cd.Properties = append(cd.Properties, propDoc{
				Name:       p.Name,
				Type:       string(p.Type),
				Optional:   p.Optional,
				ObjectType: p.ObjectType,
			})
		}
		for _, key := range table.order {
			cd.Rows = append(cd.Rows, rowDoc{Key: string(key), Values: table.rows[key]})
		}
		doc.Classes = append(doc.Classes, cd)
	}
	return doc
}

// loadDoc replaces the session's live state with the file's content.
// Caller holds the session lock.
func (s *Session) loadDoc(doc fileDoc) {
	s.schemaVersion = doc.Version
	s.schema = nil
	s.tables = make(map[TableKey]*Table)
	s.tablesByName = make(map[string]TableKey)

	for _, cd := range doc.Classes {
		c := schema.CanonicalObjectSchema{
			Name:       cd.Name,
			TableType:  schema.TableType(cd.TableType),
			PrimaryKey: cd.PrimaryKey,
			Defaults:   map[string]interface{}{},
		}
		for _, pd := range cd.Properties {
			c.Properties = append(c.Properties, schema.Property{
				Name:       pd.Name,
				Type:       schema.PropertyType(pd.Type),
				Optional:   pd.Optional,
				ObjectType: pd.ObjectType,
				PrimaryKey: pd.Name == cd.PrimaryKey,
			})
		}
		s.schema = append(s.schema, c)

		table := newTable(s, TableKey(cd.Key), cd.Name, cd.PrimaryKey)
		for _, rd := range cd.Rows {
			key := ObjectKey(rd.Key)
			table.rows[key] = normalizeRow(rd.Values)
			table.order = append(table.order, key)
		}
		s.tables[table.key] = table
		s.tablesByName[cd.Name] = table.key
	}
}

// normalizeRow maps BSON decode artifacts back to the engine's native
// column value types.
func normalizeRow(values map[string]interface{}) Row {
	row := make(Row, len(values))
	for name, value := range values {
		row[name] = normalizeValue(value)
	}
	return row
}

func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case int32:
		return int64(v)
	case primitive.DateTime:
		return v.Time().UTC()
	case time.Time:
		return v.UTC()
	case primitive.Binary:
		return v.Data
	case primitive.A:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return value
	}
}

// SchemaVersionAt reads the schema version of the database file at
// path without opening a session. A missing or unversioned file
// reports UnversionedSchema.
func SchemaVersionAt(path string, encryptionKey []byte) (int64, error) {
	if !helpers.FileExists(path) {
		return UnversionedSchema, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return UnversionedSchema, fmt.Errorf("error reading database file %s: %w", path, err)
	}
	doc, err := decodeFile(data, encryptionKey)
	if err != nil {
		return UnversionedSchema, err
	}
	return doc.Version, nil
}
