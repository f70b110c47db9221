package db

// IndexBuilder assembles an IndexDefinition fluently.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition with one shard, no replicas.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, Shards: 1}}
}

// Shards sets number_of_shards.
func (b *IndexBuilder) Shards(n int) *IndexBuilder {
	b.def.Shards = n
	return b
}

// Replicas sets number_of_replicas.
func (b *IndexBuilder) Replicas(n int) *IndexBuilder {
	b.def.Replicas = n
	return b
}

// Keyword adds keyword fields.
func (b *IndexBuilder) Keyword(names ...string) *IndexBuilder {
	for _, n := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: n, Type: FieldKeyword})
	}
	return b
}

// Text adds an analyzed text field.
func (b *IndexBuilder) Text(name, analyzer string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldText, Analyzer: analyzer})
	return b
}

// Float adds a float field.
func (b *IndexBuilder) Float(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: FieldFloat})
	return b
}

// Date adds date fields.
func (b *IndexBuilder) Date(names ...string) *IndexBuilder {
	for _, n := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: n, Type: FieldDate})
	}
	return b
}

// DenseVector adds an indexed dense_vector field.
func (b *IndexBuilder) DenseVector(name string, dims int, sim Similarity) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:             name,
		Type:             FieldDenseVector,
		VectorDims:       dims,
		VectorSimilarity: sim,
	})
	return b
}

// StringsAsKeywords enables the strings_as_keywords dynamic template.
func (b *IndexBuilder) StringsAsKeywords() *IndexBuilder {
	b.def.StringsAsKeywords = true
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	def := b.def
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// MustBuild is like Build but panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
