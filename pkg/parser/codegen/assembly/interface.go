package assembly

// Assembly interface defines methods for generating and building a program image.
type Assembly interface {
	Generate() error
	GetCode() string
	Build() error
}
