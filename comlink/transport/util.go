package transport

import (
	"reflect"

	"github.com/sammck-go/comlink/comlink"
)

// funcEqual compares two MessageHandler values by the function pointer
// they wrap, since comlink.MessageHandler is not comparable with ==.
func funcEqual(a, b comlink.MessageHandler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
