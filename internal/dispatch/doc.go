// Package dispatch forwards changed records to the catalog.
//
// Each record is tagged with the collection acronym and fingerprinted under
// collection+ISSN. Records whose fingerprint did not change are skipped;
// the rest are sent to the Sink. A failed send never stops the batch.
package dispatch
