// Package separate splits parsed records across the Data, PII and Link stores.
//
// For each dataset the Separator writes three tables with the dataset's name:
//
//	data.<dataset>  record_id, non-identifying columns, valid_ssn, import_dt
//	pii.<dataset>   pii_id, identifying columns, import_dt
//	link.<dataset>  record_id, pii_id
//
// The stores share nothing but the opaque ids, and only the link table can
// join a data row back to its pii row. pii_id order is a keyed permutation
// of record order, so neither id reveals the other.
//
// Tables are always rebuilt from scratch. A dataset whose layout declares no
// identifying column gets no pii or link table at all.
package separate
