package payments

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/angelmondragon/stkpush-backend/internal/payments")
