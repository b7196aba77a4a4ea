package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	targetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeofenceTarget",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"latitude":      &graphql.Field{Type: graphql.Float},
			"longitude":     &graphql.Field{Type: graphql.Float},
			"radius_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	sampleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PositionSample",
		Fields: graphql.Fields{
			"latitude":             &graphql.Field{Type: graphql.Float},
			"longitude":            &graphql.Field{Type: graphql.Float},
			"accuracy_meters":      &graphql.Field{Type: graphql.Float},
			"captured_at_epoch_ms": &graphql.Field{Type: graphql.Float},
		},
	})

	locationStatusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocationStatus",
		Fields: graphql.Fields{
			"state":               &graphql.Field{Type: graphql.String},
			"status":              &graphql.Field{Type: graphql.String},
			"permission_granted":  &graphql.Field{Type: graphql.Boolean},
			"is_loading":          &graphql.Field{Type: graphql.Boolean},
			"user_location":       &graphql.Field{Type: sampleType},
			"nearest_library":     &graphql.Field{Type: targetType},
			"distance_to_library": &graphql.Field{Type: graphql.Float},
			"watching":            &graphql.Field{Type: graphql.Boolean},
			"updated_at":          &graphql.Field{Type: graphql.DateTime},
		},
	})

	proximityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ProximityResult",
		Fields: graphql.Fields{
			"in_range":        &graphql.Field{Type: graphql.Boolean},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"target":          &graphql.Field{Type: targetType},
			"sample":          &graphql.Field{Type: sampleType},
		},
	})

	queueStatusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "QueueStatus",
		Fields: graphql.Fields{
			"is_online":     &graphql.Field{Type: graphql.Boolean},
			"pending_count": &graphql.Field{Type: graphql.Int},
			"syncing":       &graphql.Field{Type: graphql.Boolean},
			"last_sync_at":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	actionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "QueuedAction",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.Int},
			"kind":            &graphql.Field{Type: graphql.String},
			"idempotency_key": &graphql.Field{Type: graphql.String},
			"created_at":      &graphql.Field{Type: graphql.DateTime},
			"attempts":        &graphql.Field{Type: graphql.Int},
			"last_error":      &graphql.Field{Type: graphql.String},
			"next_attempt_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	libraryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Library",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"address":       &graphql.Field{Type: graphql.String},
			"location":      &graphql.Field{Type: geoPointType},
			"radius_meters": &graphql.Field{Type: graphql.Float},
			"floors":        &graphql.Field{Type: graphql.Int},
			"active":        &graphql.Field{Type: graphql.Boolean},
		},
	})

	seatType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Seat",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"library_id": &graphql.Field{Type: graphql.String},
			"floor":      &graphql.Field{Type: graphql.Int},
			"label":      &graphql.Field{Type: graphql.String},
			"status":     &graphql.Field{Type: graphql.String},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"location": &graphql.Field{
				Type:        locationStatusType,
				Description: "Current location status",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Location.Status(), nil
				},
			},
			"target": &graphql.Field{
				Type:        targetType,
				Description: "Selected target library, if any",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Location.Target(), nil
				},
			},
			"queue": &graphql.Field{
				Type:        queueStatusType,
				Description: "Offline action queue status",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Queue.Status(), nil
				},
			},
			"pendingActions": &graphql.Field{
				Type:        graphql.NewList(actionType),
				Description: "Queued actions in delivery order",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Queue.Pending(), nil
				},
			},
			"libraries": &graphql.Field{
				Type:        graphql.NewList(libraryType),
				Description: "List libraries",
				Args: graphql.FieldConfigArgument{
					"active": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: true},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					active := p.Args["active"].(bool)
					return deps.Libraries.List(p.Context, active)
				},
			},
			"library": &graphql.Field{
				Type:        libraryType,
				Description: "Get a library by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Libraries.Get(p.Context, p.Args["id"].(string))
				},
			},
			"seats": &graphql.Field{
				Type:        graphql.NewList(seatType),
				Description: "Seats on a floor",
				Args: graphql.FieldConfigArgument{
					"floor": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Seats.Fetch(p.Context, p.Args["floor"].(int))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"syncQueue": &graphql.Field{
				Type:        queueStatusType,
				Description: "Drain the queue now, ignoring backoff",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := deps.Queue.ForceSync(p.Context); err != nil {
						return nil, err
					}
					return deps.Queue.Status(), nil
				},
			},
			"refreshLocation": &graphql.Field{
				Type:        proximityType,
				Description: "Re-sample and verify proximity to the target library",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Location.RefreshCurrent(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
