// Package config defines the canonical configuration model for a script ETL
// pipeline. Pipelines are loaded from JSON or YAML files and passed through
// the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":      "scores",
//	  "source":   { "kind": "file", "file": { "path": "path/to.csv" } },
//	  "parser":   { "kind": "csv", "options": { "has_header": true } },
//	  "transform":[
//	    { "kind": "coerce", "options": { "types": { "id": "int" } } },
//	    { "kind": "script", "options": { "scripts": [ { "source": "x = id * 2" } ],
//	                                      "fields": [ { "name": "x", "type": "integer" } ] } }
//	  ],
//	  "storage":  { "kind": "sqlite", "db": { "dsn": "file:out.db", "table": "t" } }
//	}
package config

// Pipeline describes the full ETL pipeline. It is the top-level object decoded
// from a pipeline file.
type Pipeline struct {
	// Job labels metrics and logs for this pipeline.
	Job string `json:"job" yaml:"job"`

	// Source describes where input data comes from (local file or blob).
	Source Source `json:"source" yaml:"source"`

	// Parser configures how raw bytes are turned into rows (CSV).
	Parser Parser `json:"parser" yaml:"parser"`

	// Transform lists the ordered transformations applied to parsed rows.
	Transform []Transform `json:"transform" yaml:"transform"`

	// Storage describes where transformed rows are written.
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Errors selects where rows routed by a script step end up.
	Errors ErrorSink `json:"errors" yaml:"errors"`

	// Properties configures the process-wide property store reached by
	// System level variables and getEnvironmentVar.
	Properties Properties `json:"properties" yaml:"properties"`
}

// RuntimeConfig sizes workers, batches and channels. The reader is a single sequential stream; transform workers size the
// coerce stage and the default copies of a script step.
type RuntimeConfig struct {
	TransformWorkers int `json:"transform_workers" yaml:"transform_workers"`
	LoaderWorkers    int `json:"loader_workers" yaml:"loader_workers"`
	BatchSize        int `json:"batch_size" yaml:"batch_size"`
	ChannelBuffer    int `json:"channel_buffer" yaml:"channel_buffer"`
}

// Source identifies the data source.
type Source struct {
	// Kind selects the source implementation: "file" or "blob".
	Kind string `json:"kind" yaml:"kind"`

	File SourceFile `json:"file" yaml:"file"`
	Blob SourceBlob `json:"blob" yaml:"blob"`
}

// SourceFile is a local input file.
type SourceFile struct {
	Path string `json:"path" yaml:"path"`
}

// SourceBlob holds configuration for the "blob" source kind.
type SourceBlob struct {
	// Bucket is a gocloud bucket URL, e.g. "file:///data" or "mem://".
	Bucket string `json:"bucket" yaml:"bucket"`
	// Key is the object key inside the bucket.
	Key string `json:"key" yaml:"key"`
}

// Parser turns the input into rows. Only "csv" exists; its options are
// has_header, comma, trim_space, lazy_quotes, fields_per_record, columns,
// header_map and scrub.
type Parser struct {
	Kind string `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Transform is one stage between parser and loader: "coerce", "script" or
// "require", applied in order.
type Transform struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Storage is where the final rows are loaded.
type Storage struct {
	// Kind selects the storage implementation: postgres, mssql or sqlite.
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig is the target database and table.
type DBConfig struct {
	// DSN is the driver connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	// Table may be schema qualified, e.g. "public.scores".
	Table string `json:"table" yaml:"table"`

	// Columns enumerates the destination columns in load order. Each must be
	// a field of the final row shape. Empty means every field of that shape.
	Columns []string `json:"columns" yaml:"columns"`

	// KeyColumns become the primary key when the table is created.
	KeyColumns []string `json:"key_columns" yaml:"key_columns"`

	// AutoCreateTable creates the table from the final row shape.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// ErrorSink configures where routed error rows go.
type ErrorSink struct {
	// Kind is "log" (default) or "file".
	Kind string `json:"kind" yaml:"kind"`
	// Path is the CSV file written by the "file" kind.
	Path string `json:"path" yaml:"path"`
}

// Properties configures the property store.
type Properties struct {
	// Kind is "memory" (default) or "redis".
	Kind string `json:"kind" yaml:"kind"`
	// Values seed the store before the pipeline starts.
	Values map[string]string `json:"values" yaml:"values"`

	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `json:"redis_db" yaml:"redis_db"`
	RedisHash string `json:"redis_hash" yaml:"redis_hash"`
}
