package record

// Kind is the wire type of a schema field.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Field is a named, typed column of a provider schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered field list pushed for one provider.
type Schema struct {
	Provider string
	Fields   []Field
}

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Provider names used as schema keys, state keys and log attributes.
const (
	ProviderStrava    = "strava"
	ProviderOpenMeteo = "openmeteo"
)

// Schemas is the fixed provider to field to type table.
var Schemas = map[string]Schema{
	ProviderStrava: {
		Provider: ProviderStrava,
		Fields: []Field{
			{Name: "activities", Kind: KindInt},
			{Name: "runs", Kind: KindInt},
			{Name: "rides", Kind: KindInt},
			{Name: "walks", Kind: KindInt},
			{Name: "swims", Kind: KindInt},
			{Name: "distance_km", Kind: KindFloat},
			{Name: "moving_time_min", Kind: KindInt},
			{Name: "elapsed_time_min", Kind: KindInt},
			{Name: "elevation_gain_m", Kind: KindFloat},
			{Name: "calories", Kind: KindInt},
		},
	},
	ProviderOpenMeteo: {
		Provider: ProviderOpenMeteo,
		Fields: []Field{
			{Name: "temperature_max_c", Kind: KindFloat},
			{Name: "temperature_min_c", Kind: KindFloat},
			{Name: "temperature_mean_c", Kind: KindFloat},
			{Name: "precipitation_mm", Kind: KindFloat},
			{Name: "rain_mm", Kind: KindFloat},
			{Name: "snowfall_cm", Kind: KindFloat},
			{Name: "precipitation_hours", Kind: KindFloat},
			{Name: "wind_speed_max_kmh", Kind: KindFloat},
		},
	},
}
