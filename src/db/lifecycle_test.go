package db

import (
	"errors"
	"testing"

	"emberdb/src/engine"
)

func mustWrite(t *testing.T, d *Database, fn func() error) {
	t.Helper()
	if err := d.Write(fn); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestNormalizeUpdateMode(t *testing.T) {
	cases := []struct {
		in   interface{}
		want UpdateMode
	}{
		{nil, UpdateNever},
		{false, UpdateNever},
		{true, UpdateAll},
		{"modified", UpdateModified},
		{UpdateAll, UpdateAll},
	}
	for _, tc := range cases {
		got, err := NormalizeUpdateMode(tc.in)
		if err != nil {
			t.Errorf("NormalizeUpdateMode(%v) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeUpdateMode(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := NormalizeUpdateMode("sometimes"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown mode, got %v", err)
	}
	if _, err := NormalizeUpdateMode(42); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for numeric mode, got %v", err)
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever)
		return err
	})

	dogs, err := d.Objects("Dog")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	n, err := dogs.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 dog, got %d", n)
	}
	dog, err := dogs.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	age, err := dog.Get("age")
	if err != nil {
		t.Fatalf("Get(age) failed: %v", err)
	}
	if age != int64(0) {
		t.Errorf("expected default age 0, got %v (%T)", age, age)
	}
}

func TestCreateRequiresTransaction(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("expected ErrIllegalState outside a transaction, got %v", err)
	}
}

func TestCreateRejectsBadArguments(t *testing.T) {
	d := openTestDB(t)
	if err := d.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction failed: %v", err)
	}
	defer d.CancelTransaction()

	if _, err := d.Create("Cat", map[string]interface{}{}, UpdateNever); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("unknown class: expected ErrClassNotFound, got %v", err)
	}
	if _, err := d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateMode("sometimes")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad mode: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.Create("Dog", map[string]interface{}{"name": "Rex", "breed": "lab"}, UpdateNever); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown property: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.Create("Dog", map[string]interface{}{"name": 12}, UpdateNever); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("wrong value type: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.Create("Dog", 42, UpdateNever); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad values shape: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.Create("Location", map[string]interface{}{"lat": 1.0, "lon": 2.0}, UpdateNever); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("embedded create: expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestCreateFromDetachedObject(t *testing.T) {
	d := openTestDB(t)

	var dog *Object
	mustWrite(t, d, func() error {
		var err error
		dog, err = d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever)
		return err
	})
	mustWrite(t, d, func() error {
		return d.Delete(dog)
	})

	err := d.Write(func() error {
		_, err := d.Create("Dog", dog, UpdateNever)
		return err
	})
	if !errors.Is(err, ErrInvalidatedObject) {
		t.Fatalf("expected ErrInvalidatedObject for detached values object, got %v", err)
	}
}

func TestCreateNeverSurfacesDuplicateKey(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Ada"}, UpdateNever)
		return err
	})

	err := d.Write(func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Eva"}, UpdateNever)
		return err
	})
	if !errors.Is(err, engine.ErrDuplicateKey) {
		t.Fatalf("expected engine duplicate key error unchanged, got %v", err)
	}
}

func TestCreateAllIsIdempotent(t *testing.T) {
	d := openTestDB(t)

	values := map[string]interface{}{"id": 1, "name": "Ada", "email": "ada@example.com"}
	for i := 0; i < 2; i++ {
		mustWrite(t, d, func() error {
			_, err := d.Create("Person", values, UpdateAll)
			return err
		})
	}

	people, err := d.Objects("Person")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	n, err := people.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one row after two upserts, got %d", n)
	}
	person, err := d.ObjectForPrimaryKey("Person", 1)
	if err != nil {
		t.Fatalf("ObjectForPrimaryKey failed: %v", err)
	}
	name, err := person.Get("name")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if name != "Ada" {
		t.Errorf("expected name Ada, got %v", name)
	}
}

func TestCreateModifiedPatchesOnlySuppliedProperties(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Ada", "email": "ada@example.com"}, UpdateNever)
		return err
	})
	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Ada Lovelace"}, UpdateModified)
		return err
	})

	person, err := d.ObjectForPrimaryKey("Person", 1)
	if err != nil {
		t.Fatalf("ObjectForPrimaryKey failed: %v", err)
	}
	name, _ := person.Get("name")
	email, _ := person.Get("email")
	if name != "Ada Lovelace" {
		t.Errorf("expected updated name, got %v", name)
	}
	if email != "ada@example.com" {
		t.Errorf("modified mode must keep omitted properties, got email %v", email)
	}

	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Ada"}, UpdateAll)
		return err
	})
	email, _ = person.Get("email")
	if email != nil {
		t.Errorf("all mode must reset omitted optional properties, got email %v", email)
	}
}

func TestCreateModifiedAcceptsPartialRowOnExistingKey(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Ada", "email": "ada@example.com"}, UpdateNever)
		return err
	})

	// A patch may omit required properties entirely; only the supplied
	// columns are written.
	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "email": "lovelace@example.com"}, UpdateModified)
		return err
	})

	person, err := d.ObjectForPrimaryKey("Person", 1)
	if err != nil {
		t.Fatalf("ObjectForPrimaryKey failed: %v", err)
	}
	email, _ := person.Get("email")
	if email != "lovelace@example.com" {
		t.Errorf("expected patched email, got %v", email)
	}
	name, _ := person.Get("name")
	if name != "Ada" {
		t.Errorf("patch must not touch omitted properties, got name %v", name)
	}
}

func TestCreateModifiedInsertStillRequiresFullRow(t *testing.T) {
	d := openTestDB(t)

	// No row with this key exists, so the partial values must complete
	// into a full row and fail on the missing required name.
	err := d.Write(func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 2, "email": "new@example.com"}, UpdateModified)
		return err
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing required property, got %v", err)
	}

	// Omitting the primary key itself never works in an upsert mode.
	err = d.Write(func() error {
		_, err := d.Create("Person", map[string]interface{}{"email": "new@example.com"}, UpdateModified)
		return err
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing primary key, got %v", err)
	}
}

func TestRoundTripByPrimaryKey(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create("Person", map[string]interface{}{"id": 7, "name": "Grace"}, UpdateNever)
		return err
	})

	person, err := d.ObjectForPrimaryKey("Person", 7)
	if err != nil {
		t.Fatalf("ObjectForPrimaryKey failed: %v", err)
	}
	if person == nil {
		t.Fatal("expected a wrapped object")
	}
	name, err := person.Get("name")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if name != "Grace" {
		t.Errorf("expected name Grace, got %v", name)
	}
	email, err := person.Get("email")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if email != nil {
		t.Errorf("expected nil email, got %v", email)
	}

	missing, err := d.ObjectForPrimaryKey("Person", 999)
	if err != nil {
		t.Fatalf("lookup of absent key must not error, got %v", err)
	}
	if missing != nil {
		t.Errorf("expected absence sentinel nil, got %v", missing)
	}
}

func TestObjectForPrimaryKeyWithoutPrimaryKey(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.ObjectForPrimaryKey("Dog", "Rex"); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestObjectsByRegisteredType(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create(Dog{}, map[string]interface{}{"name": "Rex", "age": int64(3)}, UpdateNever)
		return err
	})

	dogs, err := d.Objects(&Dog{})
	if err != nil {
		t.Fatalf("Objects by prototype failed: %v", err)
	}
	n, err := dogs.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 dog, got %d", n)
	}
}

func TestObjectsRejectsUnqueryableClasses(t *testing.T) {
	d := openTestDB(t)

	if _, err := d.Objects("Location"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("embedded query: expected ErrUnsupportedOperation, got %v", err)
	}
	if _, err := d.Objects("Metric"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("asymmetric query: expected ErrUnsupportedOperation, got %v", err)
	}
	if _, err := d.Objects("Nothing"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("unknown class: expected ErrClassNotFound, got %v", err)
	}
}

func TestDeleteVariants(t *testing.T) {
	d := openTestDB(t)

	var rex, fido, odie *Object
	mustWrite(t, d, func() error {
		var err error
		if rex, err = d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever); err != nil {
			return err
		}
		if fido, err = d.Create("Dog", map[string]interface{}{"name": "Fido"}, UpdateNever); err != nil {
			return err
		}
		odie, err = d.Create("Dog", map[string]interface{}{"name": "Odie"}, UpdateNever)
		return err
	})

	if err := d.Delete(rex); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("delete outside transaction: expected ErrIllegalState, got %v", err)
	}

	mustWrite(t, d, func() error {
		return d.Delete(rex)
	})
	if rex.IsValid() {
		t.Error("deleted object must be invalidated")
	}

	err := d.Write(func() error { return d.Delete(rex) })
	if !errors.Is(err, ErrInvalidatedObject) {
		t.Fatalf("double delete: expected ErrInvalidatedObject, got %v", err)
	}

	err = d.Write(func() error { return d.Delete("Dog") })
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("unsupported subject: expected ErrNotImplemented, got %v", err)
	}

	mustWrite(t, d, func() error {
		return d.Delete([]*Object{fido, odie})
	})

	dogs, err := d.Objects("Dog")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	n, err := dogs.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table, got %d rows", n)
	}
}

func TestDeleteResults(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		for _, name := range []string{"Rex", "Fido"} {
			if _, err := d.Create("Dog", map[string]interface{}{"name": name}, UpdateNever); err != nil {
				return err
			}
		}
		return nil
	})

	dogs, err := d.Objects("Dog")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	mustWrite(t, d, func() error {
		return d.Delete(dogs)
	})
	n, err := dogs.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty view after delete, got %d", n)
	}
}

func TestDeleteAll(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		if _, err := d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever); err != nil {
			return err
		}
		_, err := d.Create("Person", map[string]interface{}{"id": 1, "name": "Ada"}, UpdateNever)
		return err
	})

	if err := d.DeleteAll(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("deleteAll outside transaction: expected ErrIllegalState, got %v", err)
	}
	mustWrite(t, d, func() error {
		return d.DeleteAll()
	})

	if len(d.Schema()) != 4 {
		t.Error("deleteAll must leave the schema intact")
	}
	for _, class := range []string{"Dog", "Person"} {
		view, err := d.Objects(class)
		if err != nil {
			t.Fatalf("Objects(%s) failed: %v", class, err)
		}
		n, err := view.Len()
		if err != nil {
			t.Fatalf("Len failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected %s cleared, got %d rows", class, n)
		}
	}
}

func TestDeleteModel(t *testing.T) {
	d := openTestDB(t)

	mustWrite(t, d, func() error {
		_, err := d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever)
		return err
	})
	versionBefore := d.SchemaVersion()

	if err := d.DeleteModel("Dog"); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("deleteModel outside transaction: expected ErrIllegalState, got %v", err)
	}

	err := d.Write(func() error { return d.DeleteModel("Nothing") })
	if !errors.Is(err, engine.ErrTableNotFound) {
		t.Fatalf("missing class: expected engine error unchanged, got %v", err)
	}

	mustWrite(t, d, func() error {
		return d.DeleteModel("Dog")
	})

	if d.SchemaVersion() != versionBefore+1 {
		t.Errorf("expected schema version bumped by one, got %d -> %d", versionBefore, d.SchemaVersion())
	}
	if _, err := d.Objects("Dog"); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("expected ErrClassNotFound after deleteModel, got %v", err)
	}
}

func TestObjectSetAndInvalidation(t *testing.T) {
	d := openTestDB(t)

	var dog *Object
	mustWrite(t, d, func() error {
		var err error
		dog, err = d.Create("Dog", map[string]interface{}{"name": "Rex"}, UpdateNever)
		return err
	})

	if err := dog.Set("age", int64(5)); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("set outside transaction: expected ErrIllegalState, got %v", err)
	}
	mustWrite(t, d, func() error {
		return dog.Set("age", int64(5))
	})
	age, err := dog.Get("age")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if age != int64(5) {
		t.Errorf("expected age 5, got %v", age)
	}

	if _, err := dog.Get("breed"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown property: expected ErrInvalidArgument, got %v", err)
	}

	d.Close()
	if dog.IsValid() {
		t.Error("object must be invalid after its handle closes")
	}
	if _, err := dog.Get("age"); !errors.Is(err, ErrInvalidatedObject) {
		t.Errorf("expected ErrInvalidatedObject after close, got %v", err)
	}
}
