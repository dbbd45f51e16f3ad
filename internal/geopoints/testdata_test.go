package geopoints

// sampleGeoJSON has two grid cells near Tehran and one polygon cell. Keys are
// deliberately out of order.
const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [51.401, 35.701]},
      "properties": {
        "name": "cell-a",
        "tmin_Time=2024-01-06": 2.5,
        "tmin_Time=2024-01-05": 1.0,
        "tmax_Time=2024-01-05": 9.0,
        "rain_Time=2024-01-05": null,
        "frost_temp_Time=day1h2": 1,
        "frost_temp_Time=day1h1": 3,
        "frost_temp_Time=day10h1": 0,
        "frost_wind_Time=day1h1": 0
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [51.6, 35.9]},
      "properties": {"tmin_Time=2024-01-05": -1.5}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[52,36],[52.2,36],[52.2,36.2],[52,36.2],[52,36]]]},
      "properties": {"tmin_Time=2024-01-05": "n/a"}
    }
  ]
}`
