package catalog

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Schema describes the catalog document for content tooling.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.ReflectFromType(reflect.TypeOf(Document{}))
	schema.Title = "Slimy Kitchen Catalog"
	schema.Description = "Ingredients, recipes and counter layout shared by the session authority and its replicas."
	return schema
}
