// Package isis converts CISIS master files into records.
//
// Converter runs the CISIS mx utility to export a master file as ISO-2709
// and Reader parses that export. Field values are split into subfields in
// the ISIS-JSON "type 3" layout: the text before the first ^ marker is
// stored under "_" and each ^x marker starts subfield "x".
package isis
