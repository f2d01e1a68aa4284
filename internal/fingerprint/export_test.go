package fingerprint

// SetSchemaVersionForTest overwrites the recorded schema version.
func (s *SQLite) SetSchemaVersionForTest(version int) error {
	_, err := s.db.Exec("UPDATE schema_version SET version = ?", version)
	return err
}
